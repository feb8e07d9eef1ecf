// Package service holds the business rules of the platform. Repositories and
// external clients are consumed through interfaces declared next to the
// services that use them.
package service

import (
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/google/uuid"
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// ListInput carries keyset pagination parameters.
type ListInput struct {
	Cursor string
	Limit  int
}

func requireManager(p domain.Principal) error {
	if !p.CanManage() {
		return domain.ErrForbidden
	}
	return nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func decodeCursor(raw string) (*pagination.Cursor, error) {
	c, err := pagination.DecodeCursor(raw)
	if err != nil {
		return nil, domain.ValidationError("invalid cursor")
	}
	return c, nil
}
