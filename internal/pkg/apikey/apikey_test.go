package apikey

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		key, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if !WellFormed(key) {
			t.Fatalf("Generate() returned malformed key %q", key)
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("Generate() returned duplicate key %q", key)
		}
		seen[key] = struct{}{}
	}
}

func TestHashAndCompare(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	hash, err := Hash(key, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if bytes.Contains(hash, []byte(key)) || bytes.Contains(hash, []byte(key[len(Prefix):])) {
		t.Fatal("hash contains the plaintext key")
	}
	if !Compare(hash, key) {
		t.Error("Compare() = false for the hashed key")
	}

	other, _ := Generate()
	if Compare(hash, other) {
		t.Error("Compare() = true for a different key")
	}
	if Compare([]byte("not-a-hash"), key) {
		t.Error("Compare() = true for a garbage hash")
	}
}

func TestWellFormed(t *testing.T) {
	valid := Prefix + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid", valid, true},
		{"empty", "", false},
		{"missing prefix", "xx_" + valid[len(Prefix):], false},
		{"too short", valid[:len(valid)-2], false},
		{"non hex", valid[:len(valid)-1] + "z", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WellFormed(tt.key); got != tt.want {
				t.Errorf("WellFormed(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
