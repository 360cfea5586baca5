package observability

import "go.opentelemetry.io/otel/attribute"

// Track builds the moq.track attribute.
func Track(name string) attribute.KeyValue { return attribute.String("moq.track", name) }

// Group builds the moq.group attribute from a group sequence number.
func Group(sequence uint64) attribute.KeyValue { return attribute.Int64("moq.group", int64(sequence)) }

// GroupSequence is an alias of Group, used where the call site already
// reads naturally as "sequence" rather than "group".
func GroupSequence(sequence uint64) attribute.KeyValue { return Group(sequence) }

// Frames builds the moq.frames attribute.
func Frames(n int) attribute.KeyValue { return attribute.Int64("moq.frames", int64(n)) }

// Broadcast builds the moq.broadcast attribute.
func Broadcast(name string) attribute.KeyValue { return attribute.String("moq.broadcast", name) }

// Subscribers builds the moq.subscribers attribute.
func Subscribers(n int) attribute.KeyValue { return attribute.Int64("moq.subscribers", int64(n)) }

// Str builds an arbitrary string attribute.
func Str(key, value string) attribute.KeyValue { return attribute.String(key, value) }

// Num builds an arbitrary integer attribute.
func Num(key string, value int64) attribute.KeyValue { return attribute.Int64(key, value) }
