package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_ScalarsChildWins(t *testing.T) {
	parent := &Profile{Name: "base", Version: "1", Description: "base profile"}
	child := &Profile{Name: "derived", Extends: "base", SourcePath: "/p/derived.md"}

	out := Merge(parent, child)

	assert.Equal(t, "derived", out.Name)
	assert.Equal(t, "1", out.Version, "unset child scalar keeps the parent value")
	assert.Equal(t, "base profile", out.Description)
	assert.Empty(t, out.Extends, "merged profile is fully flattened")
	assert.Equal(t, "/p/derived.md", out.SourcePath)
}

func TestMerge_ListsConcatParentFirst(t *testing.T) {
	parent := &Profile{Providers: []ModuleRef{{Module: "provider-a"}}}
	child := &Profile{Providers: []ModuleRef{{Module: "provider-b"}}}

	out := Merge(parent, child)

	require.Len(t, out.Providers, 2)
	assert.Equal(t, "provider-a", out.Providers[0].Module)
	assert.Equal(t, "provider-b", out.Providers[1].Module)
}

func TestMerge_MapsChildWins(t *testing.T) {
	parent := &Profile{
		Agents:  map[string]string{"shared": "./parent.md", "only-parent": "./op.md"},
		Context: map[string]string{"docs": "./parent-docs"},
	}
	child := &Profile{
		Agents: map[string]string{"shared": "./child.md"},
	}

	out := Merge(parent, child)

	assert.Equal(t, "./child.md", out.Agents["shared"])
	assert.Equal(t, "./op.md", out.Agents["only-parent"])
	assert.Equal(t, "./parent-docs", out.Context["docs"])
}

func TestMerge_SessionPerField(t *testing.T) {
	parent := &Profile{Session: &Session{
		Orchestrator: &ModuleRef{Module: "loop-a"},
		Context:      &ModuleRef{Module: "ctx-a"},
	}}
	child := &Profile{Session: &Session{
		Context: &ModuleRef{Module: "ctx-b"},
	}}

	out := Merge(parent, child)

	require.NotNil(t, out.Session)
	assert.Equal(t, "loop-a", out.Session.Orchestrator.Module)
	assert.Equal(t, "ctx-b", out.Session.Context.Module)
}

func TestMerge_NilSessions(t *testing.T) {
	parent := &Profile{Session: &Session{Orchestrator: &ModuleRef{Module: "loop-a"}}}
	child := &Profile{}

	out := Merge(parent, child)
	require.NotNil(t, out.Session)
	assert.Equal(t, "loop-a", out.Session.Orchestrator.Module)

	out = Merge(&Profile{}, &Profile{})
	assert.Nil(t, out.Session)
}

func TestHash_Deterministic(t *testing.T) {
	p := &Profile{
		Name:      "research",
		Session:   &Session{Orchestrator: &ModuleRef{Module: "loop-a", Source: "./loop-a"}},
		Providers: []ModuleRef{{Module: "provider-x", Source: "./provider-x"}},
		Body:      "# Instructions",
	}
	assert.Equal(t, Hash(p), Hash(p))
}

func TestHash_SensitiveToBody(t *testing.T) {
	a := &Profile{Name: "p", Body: "one"}
	b := &Profile{Name: "p", Body: "one "}
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestHash_SensitiveToConfig(t *testing.T) {
	a := &Profile{Name: "p", Providers: []ModuleRef{{Module: "m", Config: map[string]any{"model": "fast"}}}}
	b := &Profile{Name: "p", Providers: []ModuleRef{{Module: "m", Config: map[string]any{"model": "slow"}}}}
	assert.NotEqual(t, Hash(a), Hash(b))
}
