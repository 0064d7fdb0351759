package token

import "testing"

func TestGenerateRandomTokenIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateRandomToken(48)
		if err != nil {
			t.Fatalf("GenerateRandomToken: %v", err)
		}
		if tok == "" {
			t.Fatal("empty token")
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestHashSHA256IsStable(t *testing.T) {
	a := HashSHA256("refresh-token")
	b := HashSHA256("refresh-token")
	if a != b {
		t.Fatal("hash is not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(a))
	}
	if HashSHA256("other") == a {
		t.Fatal("different inputs hash equal")
	}
}
