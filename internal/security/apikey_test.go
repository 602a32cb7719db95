package security

import (
	"encoding/hex"
	"testing"
)

func TestGenerateAPIKey_APIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if len(a) != 2*APIKeyBytes {
		t.Errorf("len = %d, want %d", len(a), 2*APIKeyBytes)
	}
	if _, err := hex.DecodeString(a); err != nil {
		t.Errorf("key is not hex: %v", err)
	}
	b, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if a == b {
		t.Error("two generated keys are equal")
	}
}

func TestAPIKeyEqual_APIKey(t *testing.T) {
	tests := []struct {
		name     string
		provided string
		stored   string
		want     bool
	}{
		{"match", "abc123", "abc123", true},
		{"mismatch", "abc124", "abc123", false},
		{"prefix", "abc", "abc123", false},
		{"empty provided", "", "abc123", false},
		{"both empty", "", "", false},
	}
	for _, tt := range tests {
		if got := APIKeyEqual(tt.provided, tt.stored); got != tt.want {
			t.Errorf("%s: APIKeyEqual = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHashToken_APIKey(t *testing.T) {
	h := HashToken("tok")
	if len(h) != 64 {
		t.Errorf("len = %d, want 64", len(h))
	}
	if h != HashToken("tok") || h == HashToken("tok2") {
		t.Error("HashToken should be deterministic and input-sensitive")
	}
}
