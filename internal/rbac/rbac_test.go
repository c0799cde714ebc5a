package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "listener availability", role: RoleListener, action: ActionCheckAvailability, allow: true},
		{name: "listener search", role: RoleListener, action: ActionSearchDirectory, allow: false},
		{name: "dj manage", role: RoleDJ, action: ActionManagePendingProfiles, allow: false},
		{name: "dj availability", role: RoleDJ, action: ActionCheckAvailability, allow: true},
		{name: "broadcaster manage", role: RoleBroadcaster, action: ActionManagePendingProfiles, allow: true},
		{name: "broadcaster search", role: RoleBroadcaster, action: ActionSearchDirectory, allow: true},
		{name: "broadcaster admin", role: RoleBroadcaster, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionCheckAvailability, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalizeFallsBackToListener(t *testing.T) {
	if got := Normalize("broadcaster"); got != RoleBroadcaster {
		t.Fatalf("Normalize(broadcaster) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleListener {
		t.Fatalf("Normalize(superuser) = %q", got)
	}
}
