// ABOUTME: Tests for role family extraction and versioned-role activation
package protocol

import (
	"reflect"
	"testing"
)

func TestRoleFamily(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"player", RolePlayer},
		{"player@v1", RolePlayer},
		{"controller@v2", RoleController},
		{"@v1", Role("@v1")}, // no family before the separator
		{"metadata", RoleMetadata},
	}
	for _, tt := range tests {
		if got := RoleFamily(tt.in); got != tt.want {
			t.Errorf("RoleFamily(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestActivateRoles(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "plain roles pass through",
			in:   []string{"player", "metadata"},
			want: []string{"player", "metadata"},
		},
		{
			name: "first declared version per family wins",
			in:   []string{"player@v2", "player@v1", "controller"},
			want: []string{"player@v2", "controller"},
		},
		{
			name: "unknown families dropped",
			in:   []string{"player", "dj", "visualizer"},
			want: []string{"player", "visualizer"},
		},
		{
			name: "empty declaration",
			in:   nil,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ActivateRoles(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ActivateRoles(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoleFamilies_StripsVersions(t *testing.T) {
	got := RoleFamilies([]string{"player@v1", "controller", "bogus"})
	if !got[RolePlayer] || !got[RoleController] {
		t.Errorf("expected player and controller families, got %v", got)
	}
	if len(got) != 2 {
		t.Errorf("unknown families must not appear, got %v", got)
	}
}
