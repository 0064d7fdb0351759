package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"local number gets country code", "0244123456", "+233244123456"},
		{"already e164", "+233244123456", "+233244123456"},
		{"spaces and dashes stripped", "024 412-3456", "+233244123456"},
		{"foreign e164 preserved", "+31612345678", "+31612345678"},
		{"garbage returned trimmed", "  not-a-number  ", "not-a-number"},
		{"empty stays empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeE164(tt.input); got != tt.want {
				t.Fatalf("NormalizeE164(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
