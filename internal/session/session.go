// Package session issues the signed tokens that identify anonymous widget visitors.
package session

import (
	"errors"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer     = "botstudio"
	DefaultTTL = 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims represents the JWT claims of a visitor session.
type Claims struct {
	SessionID   string `json:"sid"`
	BotID       string `json:"bot_id"`
	WorkspaceID string `json:"workspace_id"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(botID, workspaceID string) (string, *domain.WidgetSession, error) {
	now := i.now().UTC().Truncate(time.Second)
	sess := &domain.WidgetSession{
		SessionID:   uuid.NewString(),
		BotID:       botID,
		WorkspaceID: workspaceID,
		ExpiresAt:   now.Add(i.ttl),
	}
	claims := Claims{
		SessionID:   sess.SessionID,
		BotID:       botID,
		WorkspaceID: workspaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sess.SessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, err
	}
	return token, sess, nil
}

func (i *Issuer) Verify(tokenString string) (*domain.WidgetSession, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.SessionID == "" || claims.BotID == "" || claims.WorkspaceID == "" {
		return nil, ErrInvalidToken
	}

	return &domain.WidgetSession{
		SessionID:   claims.SessionID,
		BotID:       claims.BotID,
		WorkspaceID: claims.WorkspaceID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
