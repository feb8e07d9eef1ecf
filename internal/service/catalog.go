package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type ToolRepository interface {
	List(ctx context.Context) ([]*domain.CreationTool, error)
	GetByID(ctx context.Context, id string) (*domain.CreationTool, error)
	UpsertBySlug(ctx context.Context, t *domain.CreationTool) error
}

type TemplateRepository interface {
	Create(ctx context.Context, t *domain.Template) error
	GetByID(ctx context.Context, workspaceID, id string) (*domain.Template, error)
	List(ctx context.Context, workspaceID, toolID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.Template], error)
	Update(ctx context.Context, t *domain.Template) error
	UpsertGlobal(ctx context.Context, t *domain.Template) error
}

// TemplateInput carries the editable fields of a workspace template.
type TemplateInput struct {
	ToolID         string
	Name           string
	Description    string
	PromptTemplate string
	Fields         []domain.TemplateField
	Model          string
}

// Catalog is the YAML document loaded by the catalog import command.
type Catalog struct {
	Tools []CatalogTool `yaml:"tools"`
}

type CatalogTool struct {
	Slug        string            `yaml:"slug"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Category    string            `yaml:"category"`
	Icon        string            `yaml:"icon"`
	SortOrder   int               `yaml:"sort_order"`
	Templates   []CatalogTemplate `yaml:"templates"`
}

type CatalogTemplate struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Prompt      string                 `yaml:"prompt"`
	Model       string                 `yaml:"model"`
	Archived    bool                   `yaml:"archived"`
	Fields      []domain.TemplateField `yaml:"fields"`
}

// ImportResult counts what a catalog import touched.
type ImportResult struct {
	Tools     int
	Templates int
}

// ParseCatalog decodes a catalog YAML document.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, domain.ValidationError("invalid catalog file: %v", err)
	}
	return &c, nil
}

// CatalogService serves creation tools and templates and renders prompts.
type CatalogService struct {
	tools     ToolRepository
	templates TemplateRepository
	uuidGen   UUIDGenerator
	log       logrus.FieldLogger

	mu     sync.RWMutex
	parsed map[string]*raymond.Template
}

func NewCatalogService(tools ToolRepository, templates TemplateRepository, uuidGen UUIDGenerator, log logrus.FieldLogger) *CatalogService {
	return &CatalogService{
		tools:     tools,
		templates: templates,
		uuidGen:   uuidGen,
		log:       log.WithField("component", "catalog"),
		parsed:    make(map[string]*raymond.Template),
	}
}

func (s *CatalogService) ListTools(ctx context.Context) ([]*domain.CreationTool, error) {
	return s.tools.List(ctx)
}

// ListTemplates returns active global templates and the workspace's own.
func (s *CatalogService) ListTemplates(ctx context.Context, p domain.Principal, toolID string, in ListInput) (*pagination.Page[*domain.Template], error) {
	cursor, err := decodeCursor(in.Cursor)
	if err != nil {
		return nil, err
	}
	return s.templates.List(ctx, p.WorkspaceID, toolID, cursor, in.Limit)
}

func (s *CatalogService) GetTemplate(ctx context.Context, p domain.Principal, id string) (*domain.Template, error) {
	return s.templates.GetByID(ctx, p.WorkspaceID, id)
}

func (s *CatalogService) CreateTemplate(ctx context.Context, p domain.Principal, in TemplateInput) (*domain.Template, error) {
	if _, err := s.tools.GetByID(ctx, in.ToolID); err != nil {
		return nil, err
	}

	now := utcNow()
	t := &domain.Template{
		ID:          s.uuidGen.NewString(),
		WorkspaceID: p.WorkspaceID,
		Status:      domain.TemplateStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyTemplateInput(t, in)
	if err := s.validate(t); err != nil {
		return nil, err
	}
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *CatalogService) UpdateTemplate(ctx context.Context, p domain.Principal, id string, in TemplateInput) (*domain.Template, error) {
	t, err := s.ownTemplate(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if in.ToolID != "" && in.ToolID != t.ToolID {
		if _, err := s.tools.GetByID(ctx, in.ToolID); err != nil {
			return nil, err
		}
	}
	applyTemplateInput(t, in)
	t.UpdatedAt = utcNow()
	if err := s.validate(t); err != nil {
		return nil, err
	}
	if err := s.templates.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ArchiveTemplate hides a workspace template from listings. Existing jobs keep their rendered prompt.
func (s *CatalogService) ArchiveTemplate(ctx context.Context, p domain.Principal, id string) error {
	t, err := s.ownTemplate(ctx, p, id)
	if err != nil {
		return err
	}
	if t.Status == domain.TemplateStatusArchived {
		return nil
	}
	t.Status = domain.TemplateStatusArchived
	t.UpdatedAt = utcNow()
	return s.templates.Update(ctx, t)
}

func (s *CatalogService) ownTemplate(ctx context.Context, p domain.Principal, id string) (*domain.Template, error) {
	t, err := s.templates.GetByID(ctx, p.WorkspaceID, id)
	if err != nil {
		return nil, err
	}
	if t.IsGlobal() {
		return nil, domain.ErrTemplateReadOnly
	}
	return t, nil
}

// Render fills the template prompt with inputs. Missing variables render empty
// and values are inserted verbatim.
func (s *CatalogService) Render(t *domain.Template, inputs map[string]string) (string, error) {
	tpl, err := s.compile(t.PromptTemplate)
	if err != nil {
		return "", err
	}
	data := make(map[string]any, len(inputs))
	for k, v := range inputs {
		data[k] = raymond.SafeString(v)
	}
	out, err := tpl.Exec(data)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "template could not be rendered", err)
	}
	return strings.TrimSpace(out), nil
}

func (s *CatalogService) compile(source string) (*raymond.Template, error) {
	s.mu.RLock()
	tpl, ok := s.parsed[source]
	s.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	tpl, err := raymond.Parse(source)
	if err != nil {
		return nil, domain.ValidationError("invalid prompt template: %v", err)
	}

	s.mu.Lock()
	s.parsed[source] = tpl
	s.mu.Unlock()
	return tpl, nil
}

func (s *CatalogService) validate(t *domain.Template) error {
	if err := domain.ValidateTemplate(t); err != nil {
		return err
	}
	_, err := s.compile(t.PromptTemplate)
	return err
}

// ImportCatalog upserts tools by slug and global templates by tool and name.
func (s *CatalogService) ImportCatalog(ctx context.Context, c *Catalog) (*ImportResult, error) {
	res := &ImportResult{}
	for i, ct := range c.Tools {
		if strings.TrimSpace(ct.Slug) == "" || strings.TrimSpace(ct.Name) == "" {
			return res, domain.ValidationError("tool #%d needs a slug and a name", i+1)
		}
		now := utcNow()
		tool := &domain.CreationTool{
			ID:          s.uuidGen.NewString(),
			Slug:        ct.Slug,
			Name:        ct.Name,
			Description: ct.Description,
			Category:    ct.Category,
			Icon:        ct.Icon,
			SortOrder:   ct.SortOrder,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.tools.UpsertBySlug(ctx, tool); err != nil {
			return res, fmt.Errorf("upsert tool %s: %w", ct.Slug, err)
		}
		res.Tools++

		for _, tt := range ct.Templates {
			t := &domain.Template{
				ID:             s.uuidGen.NewString(),
				ToolID:         tool.ID,
				Name:           strings.TrimSpace(tt.Name),
				Description:    tt.Description,
				PromptTemplate: tt.Prompt,
				Fields:         tt.Fields,
				Model:          tt.Model,
				Status:         domain.TemplateStatusActive,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if tt.Archived {
				t.Status = domain.TemplateStatusArchived
			}
			if t.Fields == nil {
				t.Fields = []domain.TemplateField{}
			}
			if err := s.validate(t); err != nil {
				return res, fmt.Errorf("template %s/%s: %w", ct.Slug, tt.Name, err)
			}
			if err := s.templates.UpsertGlobal(ctx, t); err != nil {
				return res, fmt.Errorf("upsert template %s/%s: %w", ct.Slug, tt.Name, err)
			}
			res.Templates++
		}
	}

	s.log.WithFields(logrus.Fields{"tools": res.Tools, "templates": res.Templates}).Info("catalog imported")
	return res, nil
}

func applyTemplateInput(t *domain.Template, in TemplateInput) {
	if in.ToolID != "" {
		t.ToolID = in.ToolID
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		t.Name = name
	}
	t.Description = in.Description
	if in.PromptTemplate != "" {
		t.PromptTemplate = in.PromptTemplate
	}
	if in.Fields != nil {
		t.Fields = in.Fields
	}
	if t.Fields == nil {
		t.Fields = []domain.TemplateField{}
	}
	t.Model = in.Model
}
