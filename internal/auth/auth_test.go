package auth

import (
	"errors"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	claims := UserClaims{
		UserID:  "user-1",
		Email:   "ops@example.com",
		Role:    "admin",
		IsAdmin: true,
	}
	token, err := manager.GenerateAccessToken(claims)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	got, err := manager.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if got.UserID != claims.UserID || got.Email != claims.Email || !got.IsAdmin {
		t.Errorf("claims = %+v, want %+v", got, claims)
	}
}

func TestValidateAccessTokenRejections(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	testCases := []struct {
		name    string
		token   func() string
		wantErr AuthError
	}{
		{
			name:    "garbage token",
			token:   func() string { return "not-a-token" },
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: func() string {
				other := NewJWTManager("different-secret", time.Hour)
				tok, _ := other.GenerateAccessToken(UserClaims{UserID: "user-1"})
				return tok
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "expired token",
			token: func() string {
				expired := NewJWTManager("test-secret", -time.Minute)
				tok, _ := expired.GenerateAccessToken(UserClaims{UserID: "user-1"})
				return tok
			},
			wantErr: ErrTokenExpired,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manager.ValidateAccessToken(tc.token())
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !VerifyPassword("correct-horse-battery", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong-password", hash) {
		t.Error("wrong password accepted")
	}

	if _, err := HashPassword("short"); err == nil {
		t.Error("expected error for password under minimum length")
	}
}
