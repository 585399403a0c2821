package entity

import "testing"

func TestValidCategory(t *testing.T) {
	for _, c := range Categories {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false, want true", c)
		}
	}

	if ValidCategory("embedding") {
		t.Error("ValidCategory(embedding) = true, want false")
	}
	if ValidCategory("") {
		t.Error("ValidCategory(\"\") = true, want false")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"User_123", "user_123"},
		{"  Alice  ", "alice"},
		{"San   Francisco", "san francisco"},
		{"\tMixed \n Whitespace ", "mixed whitespace"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
