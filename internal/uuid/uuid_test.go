package uuid

import "testing"

// TestNew verifies generated UUIDs are valid v4 and unique.
func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("generated UUID %q is not valid v4", id)
		}
		if seen[id] {
			t.Fatalf("duplicate UUID generated: %s", id)
		}
		seen[id] = true
	}
}

// TestIsValid verifies format validation including version and variant bits.
func TestIsValid(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid lowercase", "b3f6a9a0-1c2d-4e5f-8a9b-0c1d2e3f4a5b", true},
		{"valid uppercase", "B3F6A9A0-1C2D-4E5F-8A9B-0C1D2E3F4A5B", true},
		{"empty", "", false},
		{"missing dashes", "b3f6a9a01c2d4e5f8a9b0c1d2e3f4a5b", false},
		{"wrong version", "b3f6a9a0-1c2d-1e5f-8a9b-0c1d2e3f4a5b", false},
		{"wrong variant", "b3f6a9a0-1c2d-4e5f-0a9b-0c1d2e3f4a5b", false},
		{"too short", "b3f6a9a0-1c2d-4e5f-8a9b", false},
		{"not hex", "zzzzzzzz-1c2d-4e5f-8a9b-0c1d2e3f4a5b", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValid(tc.input); got != tc.want {
				t.Errorf("IsValid(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

// TestValidate verifies the error form of validation.
func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("Validate rejected a generated UUID: %v", err)
	}
	if err := Validate("not-a-uuid"); err == nil {
		t.Error("Validate accepted an invalid UUID")
	}
}
