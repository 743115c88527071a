package hash

import (
	"testing"
)

func TestSHA256(t *testing.T) {
	tests := []struct {
		input []byte
		want  string
	}{
		{
			[]byte("hello"),
			"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		},
		{
			[]byte(""),
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			got := SHA256(tt.input)
			if got != tt.want {
				t.Errorf("SHA256(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestSHA256Short(t *testing.T) {
	data := []byte("hello")
	if got := SHA256Short(data, 8); got != "2cf24dba" {
		t.Errorf("SHA256Short() = %s, want 2cf24dba", got)
	}
	if got := SHA256Short(data, 1000); len(got) != 64 {
		t.Errorf("SHA256Short() with oversized n returned %d chars", len(got))
	}
}

func TestSeed(t *testing.T) {
	// md5("hello") = 5d41402abc4b2a76...
	if got := Seed("hello"); got != 0x5d41402a {
		t.Errorf("Seed(hello) = %x, want 5d41402a", got)
	}
	if Seed("a") == Seed("b") {
		t.Error("different inputs should give different seeds")
	}
	if Seed("stable") != Seed("stable") {
		t.Error("Seed must be deterministic")
	}
}
