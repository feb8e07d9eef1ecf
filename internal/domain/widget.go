package domain

import (
	"regexp"
	"strings"
	"time"
)

// WidgetStatus is the lifecycle state of a widget version.
type WidgetStatus string

const (
	WidgetStatusDraft     WidgetStatus = "draft"
	WidgetStatusPublished WidgetStatus = "published"
	WidgetStatusArchived  WidgetStatus = "archived"
)

// WidgetConfig is the embeddable chat widget configuration.
type WidgetConfig struct {
	Title          string   `json:"title"`
	Greeting       string   `json:"greeting"`
	Placeholder    string   `json:"placeholder"`
	PrimaryColor   string   `json:"primary_color"`
	Position       string   `json:"position"`
	AllowedOrigins []string `json:"allowed_origins"`
	ShowBranding   bool     `json:"show_branding"`
}

// WidgetVersion is a publishable snapshot of a bot's widget configuration.
type WidgetVersion struct {
	ID          string
	BotID       string
	WorkspaceID string
	Version     int
	Status      WidgetStatus
	Config      WidgetConfig
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
	ArchivedAt  *time.Time
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}){1,2}$`)

// DefaultWidgetConfig returns the configuration given to new drafts.
func DefaultWidgetConfig(botName string) WidgetConfig {
	return WidgetConfig{
		Title:          botName,
		Greeting:       "Hi! How can I help you today?",
		Placeholder:    "Type your message...",
		PrimaryColor:   "#4f46e5",
		Position:       "right",
		AllowedOrigins: []string{},
		ShowBranding:   true,
	}
}

// CanTransition reports whether a version may move from its current status to next.
func (v *WidgetVersion) CanTransition(next WidgetStatus) bool {
	switch v.Status {
	case WidgetStatusDraft:
		return next == WidgetStatusPublished || next == WidgetStatusArchived
	case WidgetStatusPublished:
		return next == WidgetStatusArchived
	}
	return false
}

// AllowsOrigin checks an Origin header against the allow list. An empty list allows any origin.
func (c WidgetConfig) AllowsOrigin(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	origin = strings.TrimSuffix(strings.ToLower(origin), "/")
	for _, allowed := range c.AllowedOrigins {
		if strings.TrimSuffix(strings.ToLower(allowed), "/") == origin {
			return true
		}
	}
	return false
}

// ValidateWidgetConfig validates a WidgetConfig
func ValidateWidgetConfig(c WidgetConfig) error {
	if strings.TrimSpace(c.Title) == "" {
		return ValidationError("widget title is required")
	}
	if len(c.Title) > 80 {
		return ValidationError("widget title must be at most 80 characters")
	}
	if len(c.Greeting) > 500 {
		return ValidationError("widget greeting must be at most 500 characters")
	}
	if c.PrimaryColor != "" && !hexColor.MatchString(c.PrimaryColor) {
		return ValidationError("primary_color must be a hex color")
	}
	if c.Position != "left" && c.Position != "right" {
		return ValidationError("position must be left or right")
	}
	for _, o := range c.AllowedOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return ValidationError("allowed origin %q must include the scheme", o)
		}
	}
	return nil
}
