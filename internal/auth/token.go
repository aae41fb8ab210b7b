package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Sub         string `json:"sub"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	JTI         string `json:"jti"`
	Exp         int64  `json:"exp"`
	Iat         int64  `json:"iat,omitempty"`
	Fingerprint string `json:"fp,omitempty"`
}

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("expired token")
	ErrFingerprintMismatch = errors.New("device fingerprint mismatch")
)

type jwtClaims struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Fingerprint string `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

func IssueToken(secret []byte, claims Claims) (string, error) {
	registered := jwt.RegisteredClaims{
		Subject:   claims.Sub,
		ID:        claims.JTI,
		ExpiresAt: jwt.NewNumericDate(time.Unix(claims.Exp, 0)),
	}
	if claims.Iat != 0 {
		registered.IssuedAt = jwt.NewNumericDate(time.Unix(claims.Iat, 0))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Name:             claims.Name,
		Email:            claims.Email,
		Fingerprint:      claims.Fingerprint,
		RegisteredClaims: registered,
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	var parsed jwtClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if parsed.Subject == "" || parsed.ID == "" {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		Sub:         parsed.Subject,
		Name:        parsed.Name,
		Email:       parsed.Email,
		JTI:         parsed.ID,
		Exp:         parsed.ExpiresAt.Unix(),
		Fingerprint: parsed.Fingerprint,
	}
	if parsed.IssuedAt != nil {
		claims.Iat = parsed.IssuedAt.Unix()
	}
	return claims, nil
}

// CheckFingerprint compares the fingerprint bound into a token against the raw
// header value sent with a request. Tokens issued without a fingerprint accept
// any header.
func CheckFingerprint(claims Claims, header string) error {
	if claims.Fingerprint == "" {
		return nil
	}
	header = strings.TrimSpace(header)
	if header == "" || HashToken(header) != claims.Fingerprint {
		return ErrFingerprintMismatch
	}
	return nil
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
