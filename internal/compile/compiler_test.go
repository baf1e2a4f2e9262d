package compile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentic-research/loadout/api"
	"github.com/agentic-research/loadout/internal/profile"
	"github.com/agentic-research/loadout/internal/ref"
)

// fakeResolver maps raw ref strings to pre-populated cache locations.
type fakeResolver struct {
	entries map[string]string
	fail    map[string]bool

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeResolver) Resolve(_ context.Context, r ref.Ref) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[r.Raw]++
	if f.fail[r.Raw] {
		return "", "", fmt.Errorf("resolve %s: network unreachable", r.Raw)
	}
	dir, ok := f.entries[r.Raw]
	if !ok {
		return "", "", errors.New("unknown ref " + r.Raw)
	}
	return dir, "id-" + path.Base(dir), nil
}

func (f *fakeResolver) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	src := filepath.Join(t.TempDir(), "research.md")
	require.NoError(t, os.WriteFile(src, []byte("---\nname: research\n---\nbody"), 0o644))
	return &profile.Profile{
		Name: "research",
		Session: &profile.Session{
			Orchestrator: &profile.ModuleRef{Module: "loop-a", Source: "./modules/loop-a"},
			Context:      &profile.ModuleRef{Module: "ctx-simple", Source: "./modules/ctx-simple"},
		},
		Providers:  []profile.ModuleRef{{Module: "provider-x", Source: "./modules/provider-x"}},
		Tools:      []profile.ModuleRef{{Module: "tool-files", Source: "./modules/tool-files"}},
		Agents:     map[string]string{"researcher": "./agents/researcher.md"},
		Context:    map[string]string{"guides": "./context/guides"},
		Body:       "body",
		SourcePath: src,
	}
}

func testSetup(t *testing.T) (*Compiler, *fakeResolver) {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "cache/c1/loop.py", []byte("loop"), 0o644))
	require.NoError(t, util.WriteFile(fs, "cache/c2/ctx.py", []byte("ctx"), 0o644))
	require.NoError(t, util.WriteFile(fs, "cache/c3/provider.py", []byte("prov"), 0o644))
	require.NoError(t, util.WriteFile(fs, "cache/c4/tool.py", []byte("tool"), 0o644))
	require.NoError(t, util.WriteFile(fs, "cache/c5/researcher.md", []byte("# Researcher"), 0o644))
	require.NoError(t, util.WriteFile(fs, "cache/c6/index.md", []byte("# Guides"), 0o644))

	res := &fakeResolver{entries: map[string]string{
		"./modules/loop-a":       "cache/c1",
		"./modules/ctx-simple":   "cache/c2",
		"./modules/provider-x":   "cache/c3",
		"./modules/tool-files":   "cache/c4",
		"./agents/researcher.md": "cache/c5/researcher.md",
		"./context/guides":       "cache/c6",
	}, fail: map[string]bool{}}

	return New(fs, res, zap.NewNop()), res
}

func TestCompile_Layout(t *testing.T) {
	c, _ := testSetup(t)
	p := testProfile(t)

	dir, err := c.Compile(context.Background(), "default", p, false)
	require.NoError(t, err)
	assert.Equal(t, "profiles/default/research", dir)

	for _, rel := range []string{
		"orchestrator/loop-a/loop.py",
		"context/ctx-simple/ctx.py",
		"providers/provider-x/provider.py",
		"tools/tool-files/tool.py",
		"agents/researcher.md",
		"contexts/guides/index.md",
		"research.md",
		LockFileName,
	} {
		_, statErr := c.fs.Stat(path.Join(dir, rel))
		assert.NoError(t, statErr, rel)
	}
}

func TestCompile_LockRecord(t *testing.T) {
	c, _ := testSetup(t)
	p := testProfile(t)

	dir, err := c.Compile(context.Background(), "default", p, false)
	require.NoError(t, err)

	lock, err := ReadLock(c.fs, path.Join(dir, LockFileName))
	require.NoError(t, err)
	assert.Equal(t, profile.Hash(p), lock.ProfileHash)
	require.Len(t, lock.Resources[RoleProviders], 1)
	assert.Equal(t, "provider-x", lock.Resources[RoleProviders][0].Name)
	assert.Equal(t, "./modules/provider-x", lock.Resources[RoleProviders][0].Ref)
	assert.Equal(t, "id-c3", lock.Resources[RoleProviders][0].ResolvedID)
}

func TestCompile_SkipsWhenHashMatches(t *testing.T) {
	c, res := testSetup(t)
	p := testProfile(t)

	_, err := c.Compile(context.Background(), "default", p, false)
	require.NoError(t, err)
	first := res.totalCalls()

	dir, err := c.Compile(context.Background(), "default", p, false)
	require.NoError(t, err)
	assert.Equal(t, "profiles/default/research", dir)
	assert.Equal(t, first, res.totalCalls(), "unchanged profile must not resolve anything")
}

func TestCompile_ForceRecompiles(t *testing.T) {
	c, res := testSetup(t)
	p := testProfile(t)

	_, err := c.Compile(context.Background(), "default", p, false)
	require.NoError(t, err)
	first := res.totalCalls()

	_, err = c.Compile(context.Background(), "default", p, true)
	require.NoError(t, err)
	assert.Greater(t, res.totalCalls(), first)
}

func TestCompile_BodyChangeRecompiles(t *testing.T) {
	c, res := testSetup(t)
	p := testProfile(t)

	_, err := c.Compile(context.Background(), "default", p, false)
	require.NoError(t, err)
	first := res.totalCalls()

	p.Body += "!"
	_, err = c.Compile(context.Background(), "default", p, false)
	require.NoError(t, err)
	assert.Greater(t, res.totalCalls(), first)
}

func TestCompile_OptionalFailureSkips(t *testing.T) {
	c, res := testSetup(t)
	res.fail["./modules/tool-files"] = true
	p := testProfile(t)

	dir, err := c.Compile(context.Background(), "default", p, false)
	require.NoError(t, err)

	_, statErr := c.fs.Stat(path.Join(dir, "tools", "tool-files"))
	assert.Error(t, statErr, "failed optional tool is not assembled")

	lock, err := ReadLock(c.fs, path.Join(dir, LockFileName))
	require.NoError(t, err)
	assert.Empty(t, lock.Resources[RoleTools])
	assert.NotEmpty(t, lock.Resources[RoleProviders])
}

func TestCompile_ProviderFailureAborts(t *testing.T) {
	c, res := testSetup(t)
	res.fail["./modules/provider-x"] = true
	p := testProfile(t)

	_, err := c.Compile(context.Background(), "default", p, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider-x")

	// Neither the final directory nor a staging leftover exists.
	_, statErr := c.fs.Stat("profiles/default/research")
	assert.Error(t, statErr)
	entries, readErr := c.fs.ReadDir("profiles/default")
	if readErr == nil {
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), ".staging-"), "staging left behind: %s", e.Name())
		}
	}
}

func TestCompile_MissingKernelSource(t *testing.T) {
	c, _ := testSetup(t)

	p := testProfile(t)
	p.Session.Orchestrator = &profile.ModuleRef{Module: "loop-a"}
	_, err := c.Compile(context.Background(), "default", p, false)
	var verr *api.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session.orchestrator", verr.Field)

	p = testProfile(t)
	p.Session.Context = nil
	_, err = c.Compile(context.Background(), "default", p, false)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session.context", verr.Field)
}

func TestCompile_ContextRefMustBeDirectory(t *testing.T) {
	c, res := testSetup(t)
	res.entries["./context/guides"] = "cache/c5/researcher.md" // a file
	p := testProfile(t)

	_, err := c.Compile(context.Background(), "default", p, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must resolve to a directory")
}
