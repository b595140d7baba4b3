package model

import "testing"

func TestRole_Satisfies(t *testing.T) {
	roles := []Role{RoleRead, RoleWrite, RoleAdmin}
	for i, have := range roles {
		for j, need := range roles {
			if got, want := have.Satisfies(need), i >= j; got != want {
				t.Errorf("%s.Satisfies(%s) = %v, want %v", have, need, got, want)
			}
		}
	}

	if Role("owner").Satisfies(RoleRead) {
		t.Error("unknown role satisfied read")
	}
	if RoleAdmin.Satisfies(Role("")) {
		t.Error("admin satisfied an unknown requirement")
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"read", "write", "admin"} {
		if r, err := ParseRole(s); err != nil || string(r) != s {
			t.Errorf("ParseRole(%q) = %q, %v", s, r, err)
		}
	}
	for _, s := range []string{"", "Admin", "owner"} {
		if _, err := ParseRole(s); err == nil {
			t.Errorf("ParseRole(%q) expected error", s)
		}
	}
}

func TestParseBucket(t *testing.T) {
	for _, s := range []string{"users", "agents", "shared"} {
		if b, err := ParseBucket(s); err != nil || string(b) != s {
			t.Errorf("ParseBucket(%q) = %q, %v", s, b, err)
		}
	}
	if _, err := ParseBucket("private"); err == nil {
		t.Error("ParseBucket(private) expected error")
	}
	if DefaultBucket(IdentityAgent) != BucketAgents || DefaultBucket(IdentityUser) != BucketUsers {
		t.Error("DefaultBucket does not follow the identity kind")
	}
}

func TestIdentity_Valid(t *testing.T) {
	tests := []struct {
		id   Identity
		want bool
	}{
		{UserIdentity("u1", "Alice"), true},
		{AgentIdentity("a1", ""), true},
		{Identity{}, false},
		{Identity{Kind: IdentityUser}, false},
		{Identity{Kind: "service", ID: "x"}, false},
	}
	for _, tt := range tests {
		if got := tt.id.Valid(); got != tt.want {
			t.Errorf("%+v.Valid() = %v, want %v", tt.id, got, tt.want)
		}
	}
	if got := AgentIdentity("a1", "bot").String(); got != "agent:a1" {
		t.Errorf("String() = %q, want agent:a1", got)
	}
}

func TestNormalizeFolder(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"   ", "/"},
		{"/", "/"},
		{"docs", "/docs"},
		{"docs/", "/docs"},
		{"/docs//2024/", "/docs/2024"},
		{"../../etc", "/etc"},
		{"a/./b/../c", "/a/c"},
	}
	for _, tt := range tests {
		if got := NormalizeFolder(tt.in); got != tt.want {
			t.Errorf("NormalizeFolder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
