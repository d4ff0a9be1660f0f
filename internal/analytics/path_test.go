package analytics

import "testing"

func TestOwnerOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"users/u123/history/doc1", "u123"},
		{"/users/u123/history/doc1", "u123"},
		{"users/u123/history/doc1/", "u123"},
		{"users/u123", "u123"},
		{"users//history/doc1", ""},
		{"accounts/u123/history/doc1", ""},
		{"users", ""},
		{"", ""},
		{"/", ""},
		{"history/doc1", ""},
	}
	for _, tt := range tests {
		if got := OwnerOf(tt.path); got != tt.want {
			t.Errorf("OwnerOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
