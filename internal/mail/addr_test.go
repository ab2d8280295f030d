package mail

import (
	"reflect"
	"testing"
)

func TestNormalizeAddresses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{
			name:  "mixed separators with duplicate",
			input: "a@x.com, b@y.com;a@x.com c@z.com",
			want:  []string{"a@x.com", "b@y.com", "c@z.com"},
		},
		{
			name:  "slice elements with embedded separators",
			input: []string{"a@x.com;b@y.com", " c@z.com ", ""},
			want:  []string{"a@x.com", "b@y.com", "c@z.com"},
		},
		{
			name:  "any slice",
			input: []any{"a@x.com", "a@x.com", 42},
			want:  []string{"a@x.com"},
		},
		{name: "empty string", input: "   ", want: nil},
		{name: "nil", input: nil, want: nil},
		{name: "unsupported type", input: 7, want: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeAddresses(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("NormalizeAddresses(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDomainAllowed(t *testing.T) {
	t.Parallel()
	allow := []string{"x.com"}
	tests := []struct {
		addr string
		want bool
	}{
		{"u@x.com", true},
		{"u@sub.x.com", true},
		{"u@X.COM", true},
		{"u@notx.com", false},
		{"u@x.com.evil.org", false},
		{"no-at-sign", false},
		{"trailing@", false},
	}
	for _, tt := range tests {
		if got := DomainAllowed(tt.addr, allow); got != tt.want {
			t.Errorf("DomainAllowed(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
	if !DomainAllowed("anyone@anywhere.org", nil) {
		t.Error("empty allow-list should admit everything")
	}
}
