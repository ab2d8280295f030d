package napcat

import "testing"

func TestExtractCredential(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body map[string]any
		want string
		ok   bool
	}{
		{name: "data string", body: map[string]any{"code": float64(0), "data": "CredA"}, want: "CredA", ok: true},
		{name: "nested lowercase", body: map[string]any{"data": map[string]any{"credential": "CredB"}}, want: "CredB", ok: true},
		{name: "nested capitalized", body: map[string]any{"data": map[string]any{"Credential": "CredC"}}, want: "CredC", ok: true},
		{name: "top level", body: map[string]any{"Credential": "CredD"}, want: "CredD", ok: true},
		{
			name: "data string wins over top level",
			body: map[string]any{"data": "CredE", "credential": "CredF"},
			want: "CredE", ok: true,
		},
		{name: "nothing", body: map[string]any{"code": float64(1)}, ok: false},
		{name: "non-string data", body: map[string]any{"data": float64(3)}, ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractCredential(tt.body)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("extractCredential = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestExtractOnline(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		body   map[string]any
		want   bool
		wantOK bool
	}{
		{name: "nested", body: map[string]any{"data": map[string]any{"online": true}}, want: true, wantOK: true},
		{name: "top level", body: map[string]any{"online": false}, want: false, wantOK: true},
		{
			name:   "nested wins over top level",
			body:   map[string]any{"data": map[string]any{"online": false}, "online": true},
			want:   false, wantOK: true,
		},
		{name: "absent", body: map[string]any{"data": map[string]any{}}, wantOK: false},
		{name: "wrong type", body: map[string]any{"online": "yes"}, wantOK: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractOnline(tt.body)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Fatalf("extractOnline = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
