package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentic-research/loadout/api"
)

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644))
}

func TestLoader_List_FirstPathWins(t *testing.T) {
	project := t.TempDir()
	user := t.TempDir()
	writeProfile(t, project, "research", "---\nname: research\n---\n")
	writeProfile(t, user, "research", "---\nname: research\n---\n")
	writeProfile(t, user, "writing", "---\nname: writing\n---\n")

	l := NewLoader([]string{project, user}, zap.NewNop())
	entries := l.List()

	require.Len(t, entries, 2)
	byName := map[string]string{}
	for _, e := range entries {
		byName[e.Name] = e.Path
	}
	assert.Equal(t, filepath.Join(project, "research.md"), byName["research"])
	assert.Equal(t, filepath.Join(user, "writing.md"), byName["writing"])
}

func TestLoader_Load_FlattensExtends(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "base", `---
name: base
version: "1"
providers:
  - module: provider-a
    source: ./provider-a
---
base body
`)
	writeProfile(t, dir, "derived", `---
name: derived
extends: base
providers:
  - module: provider-b
    source: ./provider-b
---
derived body
`)

	l := NewLoader([]string{dir}, zap.NewNop())
	p, err := l.Load("derived")
	require.NoError(t, err)

	assert.Equal(t, "derived", p.Name)
	assert.Equal(t, "1", p.Version)
	assert.Empty(t, p.Extends)
	require.Len(t, p.Providers, 2)
	assert.Equal(t, "provider-a", p.Providers[0].Module)
	assert.Equal(t, "provider-b", p.Providers[1].Module)
	assert.Equal(t, "derived body", p.Body)
	assert.Equal(t, filepath.Join(dir, "derived.md"), p.SourcePath)
}

func TestLoader_Load_ExtendsWithCollectionQualifier(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "base", "---\nname: base\nversion: \"2\"\n---\n")
	writeProfile(t, dir, "child", "---\nname: child\nextends: shared/base\n---\n")

	l := NewLoader([]string{dir}, zap.NewNop())
	p, err := l.Load("child")
	require.NoError(t, err)
	assert.Equal(t, "2", p.Version)
}

func TestLoader_Load_Cycle(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "a", "---\nname: a\nextends: b\n---\n")
	writeProfile(t, dir, "b", "---\nname: b\nextends: a\n---\n")

	l := NewLoader([]string{dir}, zap.NewNop())
	_, err := l.Load("a")
	var verr *api.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "inheritance cycle")
}

func TestLoader_Load_NotFound(t *testing.T) {
	l := NewLoader([]string{t.TempDir()}, zap.NewNop())
	_, err := l.Load("missing")
	var nf *api.NotFoundError
	assert.True(t, errors.As(err, &nf))
}
