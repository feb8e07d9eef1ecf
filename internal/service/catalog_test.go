package service

import (
	"context"
	"strings"
	"testing"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
tools:
  - slug: blog-writer
    name: Blog writer
    category: writing
    sort_order: 1
    templates:
      - name: Article
        prompt: "Write an article about {{topic}}."
        fields:
          - name: topic
            label: Topic
            type: text
            required: true
      - name: Old article
        prompt: "Write about {{topic}}."
        archived: true
  - slug: social-post
    name: Social post
`

func newCatalogFixture(uuids ...string) (*CatalogService, *MockToolRepository, *MockTemplateRepository) {
	tools := new(MockToolRepository)
	templates := new(MockTemplateRepository)
	return NewCatalogService(tools, templates, NewMockUUIDGenerator(uuids...), testLogger()), tools, templates
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(strings.NewReader(catalogYAML))

	require.NoError(t, err)
	require.Len(t, c.Tools, 2)
	assert.Equal(t, "blog-writer", c.Tools[0].Slug)
	require.Len(t, c.Tools[0].Templates, 2)
	assert.True(t, c.Tools[0].Templates[1].Archived)
	assert.Equal(t, domain.FieldTypeText, c.Tools[0].Templates[0].Fields[0].Type)
}

func TestParseCatalog_UnknownField(t *testing.T) {
	_, err := ParseCatalog(strings.NewReader("tools:\n  - slug: x\n    colour: red\n"))
	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
}

func TestCatalogService_ImportCatalog(t *testing.T) {
	ctx := context.Background()
	svc, tools, templates := newCatalogFixture("tool-1", "tpl-1", "tpl-2", "tool-2")

	c, err := ParseCatalog(strings.NewReader(catalogYAML))
	require.NoError(t, err)

	tools.On("UpsertBySlug", ctx, mock.AnythingOfType("*domain.CreationTool")).Return(nil)
	var imported []*domain.Template
	templates.On("UpsertGlobal", ctx, mock.AnythingOfType("*domain.Template")).Run(func(args mock.Arguments) {
		imported = append(imported, args.Get(1).(*domain.Template))
	}).Return(nil)

	res, err := svc.ImportCatalog(ctx, c)

	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Tools: 2, Templates: 2}, res)
	require.Len(t, imported, 2)
	assert.Equal(t, "tool-1", imported[0].ToolID)
	assert.True(t, imported[0].IsGlobal())
	assert.Equal(t, domain.TemplateStatusActive, imported[0].Status)
	assert.Equal(t, domain.TemplateStatusArchived, imported[1].Status)
	assert.NotNil(t, imported[1].Fields)
}

func TestCatalogService_ImportCatalog_BadPrompt(t *testing.T) {
	ctx := context.Background()
	svc, tools, templates := newCatalogFixture()
	tools.On("UpsertBySlug", ctx, mock.Anything).Return(nil)

	_, err := svc.ImportCatalog(ctx, &Catalog{Tools: []CatalogTool{{
		Slug: "broken", Name: "Broken",
		Templates: []CatalogTemplate{{Name: "Unclosed", Prompt: "{{#if topic}}never closed"}},
	}}})

	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
	templates.AssertNotCalled(t, "UpsertGlobal", mock.Anything, mock.Anything)
}

func TestCatalogService_Render(t *testing.T) {
	svc, _, _ := newCatalogFixture()
	tpl := &domain.Template{PromptTemplate: "Write about {{topic}}.{{#if outline}} Follow: {{outline}}{{/if}}"}

	out, err := svc.Render(tpl, map[string]string{"topic": "<Go & generics>", "outline": ""})
	require.NoError(t, err)
	assert.Equal(t, "Write about <Go & generics>.", out)

	out, err = svc.Render(tpl, map[string]string{"topic": "Go", "outline": "intro, body"})
	require.NoError(t, err)
	assert.Equal(t, "Write about Go. Follow: intro, body", out)

	out, err = svc.Render(tpl, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "Write about .", out)
}

func TestCatalogService_CreateTemplate(t *testing.T) {
	ctx := context.Background()

	t.Run("workspace template", func(t *testing.T) {
		svc, tools, templates := newCatalogFixture("tpl-1")
		tools.On("GetByID", ctx, "tool-1").Return(&domain.CreationTool{ID: "tool-1"}, nil)
		templates.On("Create", ctx, mock.AnythingOfType("*domain.Template")).Return(nil)

		tpl, err := svc.CreateTemplate(ctx, memberPrincipal, TemplateInput{
			ToolID: "tool-1", Name: " Launch post ", PromptTemplate: "Announce {{product}}",
		})

		require.NoError(t, err)
		assert.Equal(t, "ws-1", tpl.WorkspaceID)
		assert.Equal(t, "Launch post", tpl.Name)
		assert.NotNil(t, tpl.Fields)
	})

	t.Run("unknown tool", func(t *testing.T) {
		svc, tools, _ := newCatalogFixture()
		tools.On("GetByID", ctx, "nope").Return(nil, domain.ErrToolNotFound)

		_, err := svc.CreateTemplate(ctx, memberPrincipal, TemplateInput{ToolID: "nope", Name: "x", PromptTemplate: "y"})
		assert.ErrorIs(t, err, domain.ErrToolNotFound)
	})
}

func TestCatalogService_GlobalTemplatesAreReadOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, templates := newCatalogFixture()
	templates.On("GetByID", ctx, "ws-1", "tpl-global").Return(&domain.Template{ID: "tpl-global", ToolID: "tool-1"}, nil)

	_, err := svc.UpdateTemplate(ctx, memberPrincipal, "tpl-global", TemplateInput{Name: "Mine now"})
	assert.ErrorIs(t, err, domain.ErrTemplateReadOnly)

	err = svc.ArchiveTemplate(ctx, memberPrincipal, "tpl-global")
	assert.ErrorIs(t, err, domain.ErrTemplateReadOnly)
	templates.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestCatalogService_ArchiveTemplate(t *testing.T) {
	ctx := context.Background()
	svc, _, templates := newCatalogFixture()
	tpl := &domain.Template{ID: "tpl-1", WorkspaceID: "ws-1", Status: domain.TemplateStatusActive}
	templates.On("GetByID", ctx, "ws-1", "tpl-1").Return(tpl, nil)
	templates.On("Update", ctx, tpl).Return(nil).Once()

	require.NoError(t, svc.ArchiveTemplate(ctx, memberPrincipal, "tpl-1"))
	assert.Equal(t, domain.TemplateStatusArchived, tpl.Status)

	// already archived
	require.NoError(t, svc.ArchiveTemplate(ctx, memberPrincipal, "tpl-1"))
	templates.AssertNumberOfCalls(t, "Update", 1)
}
