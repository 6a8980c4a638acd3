package pkgdef

import "testing"

func TestParseRef(t *testing.T) {
	tests := []struct {
		input      string
		name       string
		constraint string
		wantErr    bool
	}{
		{input: "python", name: "python"},
		{input: "python@3.11.4", name: "python", constraint: "3.11.4"},
		{input: "zlib@~1.2.13", name: "zlib", constraint: "~1.2.13"},
		{input: "openssl@^3.0.0", name: "openssl", constraint: "^3.0.0"},
		{input: "  spaced  ", name: "spaced"},
		{input: "", wantErr: true},
		{input: "@1.0.0", wantErr: true},
		{input: "python@", wantErr: true},
	}

	for _, tt := range tests {
		ref, err := ParseRef(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRef(%q): expected error, got %+v", tt.input, ref)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRef(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if ref.Name != tt.name {
			t.Errorf("ParseRef(%q): name = %q, want %q", tt.input, ref.Name, tt.name)
		}
		if ref.Constraint != tt.constraint {
			t.Errorf("ParseRef(%q): constraint = %q, want %q", tt.input, ref.Constraint, tt.constraint)
		}
	}
}

func TestRefString_RoundTrip(t *testing.T) {
	for _, s := range []string{"python", "python@3.11.4", "zlib@~1.2.13"} {
		ref, err := ParseRef(s)
		if err != nil {
			t.Fatalf("ParseRef(%q): %v", s, err)
		}
		if ref.String() != s {
			t.Errorf("round trip of %q produced %q", s, ref.String())
		}
	}
}

func TestRefMatches(t *testing.T) {
	tests := []struct {
		ref     string
		version string
		want    bool
	}{
		{"python", "3.11.4", true},
		{"python@latest", "3.11.4", true},
		{"python@3.11.4", "3.11.4", true},
		{"python@3.11.4", "3.11.5", false},
		{"python@~3.11.0", "3.11.9", true},
		{"python@~3.11.0", "3.12.0", false},
		{"python@^3.0.0", "3.12.1", true},
		{"python@^3.0.0", "4.0.0", false},
	}

	for _, tt := range tests {
		ref, err := ParseRef(tt.ref)
		if err != nil {
			t.Fatalf("ParseRef(%q): %v", tt.ref, err)
		}
		if got := ref.Matches(tt.version); got != tt.want {
			t.Errorf("%q.Matches(%q) = %v, want %v", tt.ref, tt.version, got, tt.want)
		}
	}
}
