package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Workspace is the tenant boundary. Every other resource is scoped to one.
type Workspace struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role is a member's permission level inside a workspace.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// WorkspaceMember links an external user identity to a workspace.
type WorkspaceMember struct {
	WorkspaceID string
	UserID      string
	Role        Role
	CreatedAt   time.Time
}

// Principal is the authenticated caller of the private API.
type Principal struct {
	WorkspaceID string
	UserID      string
	Role        Role
}

// CanManage reports whether the principal may administer the workspace
// (members, keys, billing).
func (p Principal) CanManage() bool {
	return p.Role == RoleOwner || p.Role == RoleAdmin
}

// NewWorkspace creates a new Workspace instance
func NewWorkspace(id, name, slug string, createdAt time.Time) *Workspace {
	return &Workspace{
		ID:        id,
		Name:      name,
		Slug:      slug,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// ValidateWorkspace validates a Workspace instance
func ValidateWorkspace(w *Workspace) error {
	if w == nil {
		return fmt.Errorf("workspace cannot be nil")
	}
	if w.ID == "" {
		return ValidationError("workspace ID is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return ValidationError("workspace name is required")
	}
	if len(w.Name) > 100 {
		return ValidationError("workspace name must be at most 100 characters")
	}
	if w.Slug == "" {
		return ValidationError("workspace slug is required")
	}
	return nil
}

// IsValidRole checks if a Role is known
func IsValidRole(r Role) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Slugify lowercases name and joins alphanumeric runs with single dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 48 {
		slug = strings.TrimSuffix(slug[:48], "-")
	}
	if slug == "" {
		slug = "workspace"
	}
	return slug
}
