package wire

import "time"

// Durations are carried on the wire as a varint count of milliseconds. The
// spec leaves the unit unspecified for group_expires; milliseconds gives
// sub-second precision without forcing 64-bit nanosecond varints for what
// is, at most, a retention hint (§9).
func appendDuration(buf []byte, d time.Duration) []byte {
	return AppendVarint(buf, uint64(d/time.Millisecond))
}

func readDuration(r Reader) (time.Duration, error) {
	ms, err := ReadVarint(r)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func appendOptionalUint64(buf []byte, v *uint64) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return AppendVarint(buf, *v)
}

func readOptionalUint64(r Reader) (*uint64, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := ReadVarint(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
