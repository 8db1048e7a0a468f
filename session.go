/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Seednode/drawbox/sketch"
)

const (
	sessionCookieName = "drawbox_session"
	sessionIssuer     = "drawbox"
)

var errInvalidSession = errors.New("invalid session token")

// sessionClaims lets a reconnecting client reclaim its player id. It is
// not authentication: anyone holding the token is that player.
type sessionClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type sessions struct {
	secret []byte
	ttl    time.Duration
}

func newSessions(secret string, ttl time.Duration) (*sessions, error) {
	key := []byte(secret)

	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}

	return &sessions{secret: key, ttl: ttl}, nil
}

func (s *sessions) issue(p sketch.Player, now time.Time) (string, error) {
	claims := sessionClaims{
		Name: p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}

	return signed, nil
}

func (s *sessions) parse(token string) (*sessionClaims, error) {
	if token == "" {
		return nil, errInvalidSession
	}

	claims := &sessionClaims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidSession, err)
	}

	if claims.Subject == "" {
		return nil, errInvalidSession
	}

	return claims, nil
}

// sessionToken prefers an explicit ?token= over the cookie.
func sessionToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}

	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}

	return ""
}

func sessionCookie(cfg *Config, token string, ttl time.Duration) *http.Cookie {
	path := cfg.prefix
	if path == "" {
		path = "/"
	}

	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	}
}
