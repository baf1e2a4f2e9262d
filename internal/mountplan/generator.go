// Package mountplan reads a compiled profile directory plus its parsed
// specification and emits the validated mount plan a runtime consumes.
//
// The plan draws the system's load-time distinction: kernel resources
// (orchestrator, context, providers, tools, hooks) are referenced by
// compiled source path, while app-layer data (agent personas, mentioned
// context) is read once and embedded as text.
package mountplan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentic-research/loadout/api"
	"github.com/agentic-research/loadout/internal/compile"
	"github.com/agentic-research/loadout/internal/mention"
	"github.com/agentic-research/loadout/internal/profile"
)

// ProjectInstructionsFile is the project-level instruction document scanned
// for mentions when present under the working root.
const ProjectInstructionsFile = "AGENTS.md"

// Generator builds mount plans from compiled profiles under StateDir.
type Generator struct {
	StateDir string
	Log      *zap.Logger
}

// Generate validates the compiled profile and produces a mount plan.
// session.orchestrator, session.context, and a non-empty provider list are
// hard requirements; tools and hooks default to empty. The returned error
// names the missing field.
func (g *Generator) Generate(collection string, p *profile.Profile, workingRoot string) (*api.MountPlan, error) {
	log := g.Log
	if log == nil {
		log = zap.NewNop()
	}

	compiledDir := filepath.Join(g.StateDir, compile.ProfilesDir, collection, p.Name)
	if _, err := os.Stat(compiledDir); err != nil {
		return nil, &api.NotFoundError{Path: compiledDir}
	}

	seen := map[string]bool{}

	orch := p.Orchestrator()
	if orch == nil || orch.Module == "" {
		return nil, &api.ValidationError{Field: "session.orchestrator", Reason: "required"}
	}
	orchEntry, err := g.kernelEntry(compiledDir, compile.RoleOrchestrator, orch, seen)
	if err != nil {
		return nil, err
	}

	ctxm := p.ContextManager()
	if ctxm == nil || ctxm.Module == "" {
		return nil, &api.ValidationError{Field: "session.context", Reason: "required"}
	}
	ctxEntry, err := g.kernelEntry(compiledDir, compile.RoleContext, ctxm, seen)
	if err != nil {
		return nil, err
	}

	providers := g.listEntries(compiledDir, compile.RoleProviders, p.Providers, seen, log)
	if len(providers) == 0 {
		return nil, &api.ValidationError{Field: "providers", Reason: "mount plan requires at least one provider"}
	}

	plan := &api.MountPlan{
		Session: api.SessionConfig{
			SessionID:    newSessionID(),
			Profile:      collection + "/" + p.Name,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
			Orchestrator: *orchEntry,
			Context:      *ctxEntry,
		},
		Providers: providers,
		Tools:     g.listEntries(compiledDir, compile.RoleTools, p.Tools, seen, log),
		Hooks:     g.listEntries(compiledDir, compile.RoleHooks, p.Hooks, seen, log),
		Agents:    loadAgents(compiledDir, log),
	}

	resolver := &mention.Resolver{
		ContextDirs: contextDirs(compiledDir),
		Log:         log,
	}
	texts := []string{p.Body}
	if doc, err := os.ReadFile(filepath.Join(workingRoot, ProjectInstructionsFile)); err == nil {
		texts = append(texts, string(doc))
	}
	if msgs := resolver.Resolve(workingRoot, texts...); len(msgs) > 0 {
		plan.ContextMessages = msgs
	}

	log.Info("generated mount plan",
		zap.String("profile", plan.Session.Profile),
		zap.String("session", plan.Session.SessionID),
		zap.Int("providers", len(plan.Providers)),
		zap.Int("context_messages", len(plan.ContextMessages)))
	return plan, nil
}

// kernelEntry builds a required mount entry, failing validation when its
// compiled directory is missing.
func (g *Generator) kernelEntry(compiledDir, role string, m *profile.ModuleRef, seen map[string]bool) (*api.MountEntry, error) {
	src := filepath.Join(compiledDir, role, m.Module)
	if _, err := os.Stat(src); err != nil {
		return nil, &api.ValidationError{
			Field:  "session." + role,
			Reason: fmt.Sprintf("compiled module %s not found", m.Module),
		}
	}
	return &api.MountEntry{Module: claimID(seen, m.Module), Source: src, Config: m.Config}, nil
}

// listEntries builds entries for providers, tools, or hooks. Declared
// modules whose compiled directory is missing are skipped with a warning;
// an absent role simply yields an empty list.
func (g *Generator) listEntries(compiledDir, role string, refs []profile.ModuleRef, seen map[string]bool, log *zap.Logger) []api.MountEntry {
	entries := make([]api.MountEntry, 0, len(refs))
	for _, m := range refs {
		src := filepath.Join(compiledDir, role, m.Module)
		if _, err := os.Stat(src); err != nil {
			log.Warn("compiled module missing, skipping",
				zap.String("role", role),
				zap.String("module", m.Module))
			continue
		}
		entries = append(entries, api.MountEntry{Module: claimID(seen, m.Module), Source: src, Config: m.Config})
	}
	return entries
}

// claimID reserves a module id, appending a deterministic .2, .3 counter on
// collision.
func claimID(seen map[string]bool, id string) string {
	if !seen[id] {
		seen[id] = true
		return id
	}
	for counter := 2; ; counter++ {
		candidate := fmt.Sprintf("%s.%d", id, counter)
		if !seen[candidate] {
			seen[candidate] = true
			return candidate
		}
	}
}

// loadAgents embeds every compiled agent file by name.
func loadAgents(compiledDir string, log *zap.Logger) map[string]string {
	dir := filepath.Join(compiledDir, compile.RoleAgents)
	files, err := os.ReadDir(dir)
	if err != nil || len(files) == 0 {
		return nil
	}
	agents := map[string]string{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			log.Warn("unreadable agent file, skipping", zap.String("file", f.Name()))
			continue
		}
		name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		agents[name] = string(data)
	}
	if len(agents) == 0 {
		return nil
	}
	return agents
}

// contextDirs maps each compiled named context directory by its key.
func contextDirs(compiledDir string) map[string]string {
	dir := filepath.Join(compiledDir, compile.RoleContexts)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	dirs := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			dirs[e.Name()] = filepath.Join(dir, e.Name())
		}
	}
	return dirs
}

func newSessionID() string {
	return "session_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
