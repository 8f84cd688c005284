package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestGenerateAndParseToken(t *testing.T) {
	id := uuid.New()
	tok, err := GenerateToken(id, "a@example.com", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ParseToken(tok, "secret")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.UserID != id {
		t.Errorf("ParseToken() UserID = %v, want %v", claims.UserID, id)
	}
	if claims.Email != "a@example.com" {
		t.Errorf("ParseToken() Email = %v, want a@example.com", claims.Email)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	id := uuid.New()
	good, _ := GenerateToken(id, "a@example.com", "secret", time.Hour)
	expired, _ := GenerateToken(id, "a@example.com", "secret", -time.Minute)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	foreignTok, _ := foreign.SignedString([]byte("secret"))

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", good, "other"},
		{"expired", expired, "secret"},
		{"alg none", unsigned, "secret"},
		{"foreign issuer", foreignTok, "secret"},
		{"garbage", "not-a-token", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); err == nil {
				t.Errorf("ParseToken(%s) error = nil, want error", tt.name)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v, want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
