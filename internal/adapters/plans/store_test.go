package plans

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "plans"))
}

func TestCreate_WritesDocumentWithFrontmatter(t *testing.T) {
	store := newTestStore(t)

	plan, err := store.Create("Auth refactor", "kiln-api")
	require.NoError(t, err)

	assert.Equal(t, "Auth refactor", plan.Title)
	assert.Equal(t, "kiln-api", plan.Session)
	assert.Equal(t, domain.PlanDraft, plan.Status)
	assert.Len(t, plan.ID, 36)

	data, err := os.ReadFile(plan.FilePath)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "---\n"))
	assert.Contains(t, content, "title: Auth refactor")
	assert.Contains(t, content, "# Auth refactor")
	assert.Contains(t, content, "## Goals")
	assert.Contains(t, content, "## Steps")
}

func TestCreate_EmptyTitle(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("   ", "kiln-api")
	assert.Error(t, err)
}

func TestList_NewestFirst(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Create("First plan", "s1")
	require.NoError(t, err)
	second, err := store.Create("Second plan", "s2")
	require.NoError(t, err)

	// ReadDir order is alphabetical by uuid, so force distinct timestamps.
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(first))

	plans, err := store.List()
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, second.ID, plans[0].ID)
	assert.Equal(t, first.ID, plans[1].ID)
}

func TestList_MissingDirectory(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never-created"))

	plans, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestList_SkipsNonPlanFiles(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create("Real plan", "s1")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "notes.txt"), []byte("scratch"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "broken.md"), []byte("no frontmatter"), 0o644))

	plans, err := store.List()
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestFind_ByIDPrefix(t *testing.T) {
	store := newTestStore(t)
	created, err := store.Create("Rate limiting", "kiln-api")
	require.NoError(t, err)

	found, err := store.Find(created.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestFind_ByTitleSubstring(t *testing.T) {
	store := newTestStore(t)
	created, err := store.Create("Rate limiting", "kiln-api")
	require.NoError(t, err)
	_, err = store.Create("Login flow", "kiln-api")
	require.NoError(t, err)

	found, err := store.Find("rate")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestFind_NoMatch(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create("Rate limiting", "kiln-api")
	require.NoError(t, err)

	_, err = store.Find("nonexistent")
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestFind_Ambiguous(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create("Auth tokens", "s1")
	require.NoError(t, err)
	_, err = store.Create("Auth sessions", "s2")
	require.NoError(t, err)

	_, err = store.Find("auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "Auth tokens")
	assert.Contains(t, err.Error(), "Auth sessions")
}

func TestSave_UpdatesFrontmatterKeepsBody(t *testing.T) {
	store := newTestStore(t)
	plan, err := store.Create("Migration", "kiln-api")
	require.NoError(t, err)

	// Simulate an agent editing the body directly.
	content, err := store.Content(plan)
	require.NoError(t, err)
	edited := strings.Replace(content, "## Goals\n\n- \n", "## Goals\n\n- ship the schema change\n", 1)
	require.NoError(t, os.WriteFile(plan.FilePath, []byte(edited), 0o644))

	plan.Status = domain.PlanActive
	require.NoError(t, store.Save(plan))

	reloaded, err := store.Find(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanActive, reloaded.Status)

	content, err = store.Content(reloaded)
	require.NoError(t, err)
	assert.Contains(t, content, "- ship the schema change")
}

func TestContent_ReturnsFullDocument(t *testing.T) {
	store := newTestStore(t)
	plan, err := store.Create("Docs pass", "kiln-api")
	require.NoError(t, err)

	content, err := store.Content(plan)
	require.NoError(t, err)
	assert.Contains(t, content, "status: draft")
	assert.Contains(t, content, "# Docs pass")
}
