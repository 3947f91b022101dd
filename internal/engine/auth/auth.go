// Package auth implements the board's shared-passphrase gate.
//
// The gate is a speed bump that keeps casual visitors off the board. It is
// not a security control: there are no user accounts, everyone holding the
// passphrase is the same principal, and the passphrase is typically shared
// in chat. Do not rely on it to protect sensitive data.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IncorrectPassphraseError is returned when an unlock attempt does not match.
type IncorrectPassphraseError struct{}

func (IncorrectPassphraseError) Error() string { return "Incorrect code" }

var ErrInvalidToken = errors.New("invalid or expired session token")

const issuer = "taskboard"

type Claims struct {
	jwt.RegisteredClaims
	Board string `json:"board,omitempty"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Gate struct {
	Passphrase string
	Secret     []byte
	TTL        time.Duration
	Board      string
	Now        func() time.Time
}

// NewGate builds a gate. Without a secret, a random one is generated, so
// sessions do not survive a restart.
func NewGate(passphrase, secret string, ttl time.Duration) (Gate, error) {
	g := Gate{Passphrase: passphrase, Secret: []byte(secret), TTL: ttl, Now: time.Now}
	if len(g.Secret) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return Gate{}, fmt.Errorf("generate session secret: %w", err)
		}
		g.Secret = buf
	}
	if g.TTL <= 0 {
		g.TTL = 720 * time.Hour
	}
	return g, nil
}

// Enabled is false when no passphrase is configured; the board is then open.
func (g Gate) Enabled() bool {
	return g.Passphrase != ""
}

func (g Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g Gate) CheckPassphrase(p string) bool {
	return subtle.ConstantTimeCompare([]byte(p), []byte(g.Passphrase)) == 1
}

// Unlock exchanges the passphrase for a signed session token.
func (g Gate) Unlock(passphrase string) (Session, error) {
	if !g.Enabled() {
		return Session{}, errors.New("gate disabled: no passphrase configured")
	}
	if !g.CheckPassphrase(passphrase) {
		return Session{}, IncorrectPassphraseError{}
	}
	now := g.now()
	exp := now.Add(g.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "board",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Board: g.Board,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.Secret)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp.UTC()}, nil
}

// Verify checks a session token issued by Unlock.
func (g Gate) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(g.now),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return g.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
