package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Inc", "acme-inc"},
		{"  Hello,   World!  ", "hello-world"},
		{"Ünïcode Café", "n-code-caf"},
		{"---", "workspace"},
		{"", "workspace"},
		{"Team 42", "team-42"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestSlugifyTruncates(t *testing.T) {
	slug := Slugify("a very long workspace name that keeps going and going and going forever")
	assert.LessOrEqual(t, len(slug), 48)
	assert.NotContains(t, slug[len(slug)-1:], "-")
}

func TestValidateWorkspace(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		ws      *Workspace
		wantErr bool
	}{
		{"valid", NewWorkspace("ws1", "Acme", "acme", now), false},
		{"missing id", NewWorkspace("", "Acme", "acme", now), true},
		{"blank name", NewWorkspace("ws1", "   ", "acme", now), true},
		{"missing slug", NewWorkspace("ws1", "Acme", "", now), true},
		{"nil", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorkspace(tt.ws)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPrincipalCanManage(t *testing.T) {
	assert.True(t, Principal{Role: RoleOwner}.CanManage())
	assert.True(t, Principal{Role: RoleAdmin}.CanManage())
	assert.False(t, Principal{Role: RoleMember}.CanManage())
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleMember))
	assert.False(t, IsValidRole("superuser"))
}

func TestDomainErrorIs(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", ErrBotNotFound)
	assert.True(t, errors.Is(wrapped, ErrBotNotFound))
	assert.False(t, errors.Is(wrapped, ErrWorkspaceNotFound))
	assert.Equal(t, ErrCodeNotFound, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestQuotaExceededMatchesSentinel(t *testing.T) {
	err := QuotaExceeded(MetricBots, 1)
	require.True(t, errors.Is(err, ErrQuotaExceeded))
	assert.Contains(t, err.Error(), "bots limit of 1")
	assert.Equal(t, ErrCodeQuotaExceeded, CodeOf(err))
}
