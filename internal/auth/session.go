// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidTicket = errors.New("invalid ticket")

// Tickets signs and verifies match tickets. A ticket binds a lobby user to one
// match: "sub" is the user name and "aud" is the match id.
type Tickets struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration
	now        func() time.Time
}

// NewTickets generates a fresh ed25519 key pair for this process. ttl <= 0 means
// tickets never expire.
func NewTickets(ttl time.Duration) (*Tickets, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Tickets{privateKey: priv, publicKey: pub, ttl: ttl, now: time.Now}, nil
}

// Issue creates a signed ticket for user to enter match matchID.
func (t *Tickets) Issue(user, matchID string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:  user,
		Audience: jwt.ClaimStrings{matchID},
		IssuedAt: jwt.NewNumericDate(now),
	}
	if t.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(t.privateKey)
}

// Verify checks a ticket against matchID and returns the user it was issued to.
func (t *Tickets) Verify(tokenString, matchID string) (string, error) {
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.publicKey, nil
	}, jwt.WithAudience(matchID), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if !tok.Valid || claims.Subject == "" {
		return "", ErrInvalidTicket
	}
	return claims.Subject, nil
}
