package security

import "testing"

func TestHashRefreshToken_Deterministic(t *testing.T) {
	h1 := HashRefreshToken("token-a")
	h2 := HashRefreshToken("token-a")
	if h1 != h2 {
		t.Error("hash should be deterministic")
	}
	if h1 == HashRefreshToken("token-b") {
		t.Error("different tokens should hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("hex sha256 length = %d, want 64", len(h1))
	}
}

func TestRefreshTokenHashEqual(t *testing.T) {
	stored := HashRefreshToken("the-token")
	if !RefreshTokenHashEqual("the-token", stored) {
		t.Error("matching token should compare equal")
	}
	if RefreshTokenHashEqual("other-token", stored) {
		t.Error("non-matching token should not compare equal")
	}
	if RefreshTokenHashEqual("the-token", "") {
		t.Error("empty stored hash should not match")
	}
}
