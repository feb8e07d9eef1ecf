package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CreationTool groups templates in the catalog.
type CreationTool struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Category    string
	Icon        string
	SortOrder   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FieldType is the input type of a template field
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeNumber   FieldType = "number"
	FieldTypeSelect   FieldType = "select"
)

// TemplateField describes one user input of a template.
type TemplateField struct {
	Name      string    `json:"name" yaml:"name"`
	Label     string    `json:"label" yaml:"label"`
	Type      FieldType `json:"type" yaml:"type"`
	Required  bool      `json:"required" yaml:"required"`
	Options   []string  `json:"options,omitempty" yaml:"options"`
	MaxLength int       `json:"max_length,omitempty" yaml:"max_length"`
}

// TemplateStatus represents whether a template can be used
type TemplateStatus string

const (
	TemplateStatusActive   TemplateStatus = "active"
	TemplateStatusArchived TemplateStatus = "archived"
)

// Template is a content-generation preset. An empty WorkspaceID marks a global catalog entry.
type Template struct {
	ID             string
	ToolID         string
	WorkspaceID    string
	Name           string
	Description    string
	PromptTemplate string
	Fields         []TemplateField
	Model          string
	Status         TemplateStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsGlobal reports whether the template belongs to the shared catalog.
func (t *Template) IsGlobal() bool {
	return t.WorkspaceID == ""
}

// VisibleTo reports whether a workspace may read and use the template.
func (t *Template) VisibleTo(workspaceID string) bool {
	return t.IsGlobal() || t.WorkspaceID == workspaceID
}

// ValidateTemplate validates a Template instance
func ValidateTemplate(t *Template) error {
	if t == nil {
		return ValidationError("template cannot be nil")
	}
	if t.ID == "" {
		return ValidationError("template ID is required")
	}
	if t.ToolID == "" {
		return ValidationError("template tool_id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return ValidationError("template name is required")
	}
	if strings.TrimSpace(t.PromptTemplate) == "" {
		return ValidationError("template prompt is required")
	}
	if t.Status != TemplateStatusActive && t.Status != TemplateStatusArchived {
		return ValidationError("template status is invalid: %s", t.Status)
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.Name == "" {
			return ValidationError("template field name is required")
		}
		if seen[f.Name] {
			return ValidationError("duplicate template field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case FieldTypeText, FieldTypeTextarea, FieldTypeNumber:
		case FieldTypeSelect:
			if len(f.Options) == 0 {
				return ValidationError("select field %q needs options", f.Name)
			}
		default:
			return ValidationError("template field %q has invalid type %q", f.Name, f.Type)
		}
		if f.MaxLength < 0 {
			return ValidationError("template field %q max_length cannot be negative", f.Name)
		}
	}
	return nil
}

// ValidateInputs checks user inputs against the template's fields and returns
// the inputs normalised to strings. Unknown keys are rejected.
func ValidateInputs(fields []TemplateField, inputs map[string]any) (map[string]string, error) {
	known := make(map[string]TemplateField, len(fields))
	for _, f := range fields {
		known[f.Name] = f
	}
	for k := range inputs {
		if _, ok := known[k]; !ok {
			return nil, ValidationError("unknown input %q", k)
		}
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		raw, ok := inputs[f.Name]
		val := ""
		if ok && raw != nil {
			val = strings.TrimSpace(fmt.Sprint(raw))
		}
		if val == "" {
			if f.Required {
				return nil, ValidationError("input %q is required", f.Name)
			}
			out[f.Name] = ""
			continue
		}
		if f.MaxLength > 0 && len([]rune(val)) > f.MaxLength {
			return nil, ValidationError("input %q must be at most %d characters", f.Name, f.MaxLength)
		}
		switch f.Type {
		case FieldTypeNumber:
			if _, err := strconv.ParseFloat(val, 64); err != nil {
				return nil, ValidationError("input %q must be a number", f.Name)
			}
		case FieldTypeSelect:
			if !contains(f.Options, val) {
				return nil, ValidationError("input %q must be one of %s", f.Name, strings.Join(f.Options, ", "))
			}
		}
		out[f.Name] = val
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
