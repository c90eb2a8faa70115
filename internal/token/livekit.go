// Package token mints access tokens for the LiveKit media server. It is
// independent of the signaling relay.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingField  = errors.New("token: room and identity are required")
	ErrNotConfigured = errors.New("token: api key and secret are not configured")
)

// VideoGrant is the LiveKit "video" claim
type VideoGrant struct {
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	Room           string `json:"room,omitempty"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

// Claims are the claims LiveKit expects in an access token
type Claims struct {
	Name  string      `json:"name,omitempty"`
	Video *VideoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs room tokens with a LiveKit API key pair
type Issuer struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewIssuer(apiKey, apiSecret string, ttl time.Duration) *Issuer {
	return &Issuer{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Configured reports whether the issuer has credentials to sign with
func (i *Issuer) Configured() bool {
	return i.apiKey != "" && len(i.apiSecret) > 0
}

// Issue returns a token that lets identity join room with publish,
// subscribe and data permissions.
func (i *Issuer) Issue(room, identity string) (string, error) {
	if !i.Configured() {
		return "", ErrNotConfigured
	}
	if room == "" || identity == "" {
		return "", ErrMissingField
	}

	now := i.now()
	claims := Claims{
		Name: identity,
		Video: &VideoGrant{
			RoomJoin:       true,
			Room:           room,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			ID:        uuid.New().String(),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.apiSecret)
}
