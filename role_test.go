package transfork

import "testing"

// TestRoleDowngrade_FullMatrix exercises all 16 client/server role pairs
// from the handshake table in spec §4.F (testable property #5).
func TestRoleDowngrade_FullMatrix(t *testing.T) {
	roles := []Role{RolePublisher, RoleSubscriber, RoleBoth, RoleAny}

	want := map[[2]Role]Role{
		{RolePublisher, RolePublisher}:  RolePublisher,
		{RolePublisher, RoleBoth}:       RolePublisher,
		{RolePublisher, RoleAny}:        RolePublisher,
		{RoleSubscriber, RoleSubscriber}: RoleSubscriber,
		{RoleSubscriber, RoleBoth}:      RoleSubscriber,
		{RoleSubscriber, RoleAny}:       RoleSubscriber,
		{RoleBoth, RolePublisher}:       RolePublisher,
		{RoleBoth, RoleSubscriber}:      RoleSubscriber,
		{RoleBoth, RoleBoth}:            RoleBoth,
		{RoleBoth, RoleAny}:             RoleBoth,
		{RoleAny, RolePublisher}:        RolePublisher,
		{RoleAny, RoleSubscriber}:       RoleSubscriber,
		{RoleAny, RoleBoth}:             RoleBoth,
	}
	incompatible := map[[2]Role]bool{
		{RolePublisher, RoleSubscriber}: true,
		{RoleSubscriber, RolePublisher}: true,
		{RoleAny, RoleAny}:              true,
	}

	for _, server := range roles {
		for _, client := range roles {
			key := [2]Role{server, client}
			got, ok := server.Downgrade(client)

			if incompatible[key] {
				if ok {
					t.Errorf("server=%s client=%s: expected incompatible, got %s", server, client, got)
				}
				continue
			}

			wantRole, known := want[key]
			if !known {
				t.Fatalf("missing expectation for server=%s client=%s", server, client)
			}
			if !ok {
				t.Errorf("server=%s client=%s: expected %s, got incompatible", server, client, wantRole)
				continue
			}
			if got != wantRole {
				t.Errorf("server=%s client=%s: got %s, want %s", server, client, got, wantRole)
			}
		}
	}
}
