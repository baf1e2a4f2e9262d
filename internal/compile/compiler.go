// Package compile turns a parsed profile into a compiled profile directory:
// every declared resource resolved through the reference cache and copied
// into role-grouped subdirectories, with a lock record for change
// detection. Compiled directories are regenerable at any time and never
// hand-edited.
package compile

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/loadout/api"
	"github.com/agentic-research/loadout/internal/profile"
	"github.com/agentic-research/loadout/internal/ref"
	"github.com/agentic-research/loadout/internal/storefs"
)

// Mount-type role directories inside a compiled profile.
const (
	RoleOrchestrator = "orchestrator"
	RoleContext      = "context"
	RoleProviders    = "providers"
	RoleTools        = "tools"
	RoleHooks        = "hooks"
	RoleAgents       = "agents"
	RoleContexts     = "contexts"
)

var roleDirs = []string{
	RoleOrchestrator, RoleContext, RoleProviders, RoleTools, RoleHooks, RoleAgents, RoleContexts,
}

// ProfilesDir is the compiled-profile root, relative to the state filesystem.
const ProfilesDir = "profiles"

// RefResolver resolves one reference to a cached location and its immutable
// identifier. Satisfied by *ref.Resolver.
type RefResolver interface {
	Resolve(ctx context.Context, r ref.Ref) (dir string, id string, err error)
}

// Compiler compiles profiles into {profiles}/{collection}/{name}/ trees.
//
// Compilation is atomic: resources are assembled in a staging directory that
// is renamed into place only after every required resource resolved. A
// failed run leaves neither a partial directory nor a lock record.
type Compiler struct {
	fs       billy.Filesystem
	resolver RefResolver
	log      *zap.Logger

	// Limit bounds concurrent reference resolution per profile.
	Limit int
}

func New(fs billy.Filesystem, resolver RefResolver, log *zap.Logger) *Compiler {
	return &Compiler{fs: fs, resolver: resolver, log: log, Limit: 4}
}

// task is one resource to resolve. Each task owns its result fields, so the
// resolution phase needs no shared mutable state beyond the cache.
type task struct {
	role     string
	name     string
	rawRef   string
	optional bool
	wantDir  bool // named context refs must resolve to directories

	dir     string // resolved location, relative to the state fs
	id      string
	skipped bool
}

// Compile resolves every resource p declares and assembles the compiled
// profile directory, returning its path relative to the state filesystem.
// When the profile hash matches the existing lock record and force is
// false, compilation is skipped entirely.
//
// Failure policy: orchestrator, context, provider, and named context
// resolution failures abort compilation; tool, hook, and agent failures log
// a warning and are skipped.
func (c *Compiler) Compile(ctx context.Context, collection string, p *profile.Profile, force bool) (string, error) {
	if p.Orchestrator() == nil || p.Orchestrator().Source == "" {
		return "", &api.ValidationError{Field: "session.orchestrator", Reason: "missing module source"}
	}
	if p.ContextManager() == nil || p.ContextManager().Source == "" {
		return "", &api.ValidationError{Field: "session.context", Reason: "missing module source"}
	}

	final := path.Join(ProfilesDir, collection, p.Name)
	lockPath := path.Join(final, LockFileName)
	hash := profile.Hash(p)

	if !force {
		if lock, err := ReadLock(c.fs, lockPath); err == nil && lock.ProfileHash == hash {
			c.log.Info("profile unchanged, skipping compilation",
				zap.String("collection", collection),
				zap.String("profile", p.Name))
			return final, nil
		}
	}

	c.log.Info("compiling profile",
		zap.String("collection", collection),
		zap.String("profile", p.Name),
		zap.Bool("force", force))

	staging := path.Join(ProfilesDir, collection, ".staging-"+p.Name)
	_ = util.RemoveAll(c.fs, staging)
	if err := c.fs.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	tasks := c.buildTasks(p)
	if err := c.resolveAll(ctx, tasks); err != nil {
		_ = util.RemoveAll(c.fs, staging)
		return "", err
	}
	if err := c.assemble(staging, p, tasks); err != nil {
		_ = util.RemoveAll(c.fs, staging)
		return "", err
	}

	// Staging is complete; swap it in and only then write the lock.
	_ = util.RemoveAll(c.fs, final)
	if err := c.fs.Rename(staging, final); err != nil {
		_ = util.RemoveAll(c.fs, staging)
		return "", fmt.Errorf("commit compiled profile: %w", err)
	}
	if err := WriteLock(c.fs, lockPath, buildLock(hash, tasks)); err != nil {
		return "", err
	}

	c.log.Info("compiled profile",
		zap.String("collection", collection),
		zap.String("profile", p.Name),
		zap.String("dir", final))
	return final, nil
}

func (c *Compiler) buildTasks(p *profile.Profile) []*task {
	var tasks []*task
	tasks = append(tasks, &task{role: RoleOrchestrator, name: p.Orchestrator().Module, rawRef: p.Orchestrator().Source})
	tasks = append(tasks, &task{role: RoleContext, name: p.ContextManager().Module, rawRef: p.ContextManager().Source})
	for _, m := range p.Providers {
		if m.Source != "" {
			tasks = append(tasks, &task{role: RoleProviders, name: m.Module, rawRef: m.Source})
		}
	}
	for _, m := range p.Tools {
		if m.Source != "" {
			tasks = append(tasks, &task{role: RoleTools, name: m.Module, rawRef: m.Source, optional: true})
		}
	}
	for _, m := range p.Hooks {
		if m.Source != "" {
			tasks = append(tasks, &task{role: RoleHooks, name: m.Module, rawRef: m.Source, optional: true})
		}
	}
	for _, name := range sortedKeys(p.Agents) {
		tasks = append(tasks, &task{role: RoleAgents, name: name, rawRef: p.Agents[name], optional: true})
	}
	for _, name := range sortedKeys(p.Context) {
		tasks = append(tasks, &task{role: RoleContexts, name: name, rawRef: p.Context[name], wantDir: true})
	}
	return tasks
}

// resolveAll resolves tasks concurrently. Required failures cancel the
// group; optional failures mark the task skipped.
func (c *Compiler) resolveAll(ctx context.Context, tasks []*task) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Limit)

	// Each task owns its result fields; g.Wait establishes the
	// happens-before edge for the assembly phase.
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			err := c.resolveOne(gctx, t)
			if err == nil {
				return nil
			}
			if t.optional {
				c.log.Warn("skipping optional resource",
					zap.String("role", t.role),
					zap.String("name", t.name),
					zap.Error(err))
				t.skipped = true
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (c *Compiler) resolveOne(ctx context.Context, t *task) error {
	r, err := ref.Parse(t.rawRef)
	if err != nil {
		return fmt.Errorf("%s %q: %w", t.role, t.name, err)
	}
	dir, id, err := c.resolver.Resolve(ctx, r)
	if err != nil {
		return fmt.Errorf("%s %q: %w", t.role, t.name, err)
	}
	if t.wantDir {
		info, statErr := c.fs.Stat(dir)
		if statErr != nil || !info.IsDir() {
			return fmt.Errorf("context ref %q must resolve to a directory", t.rawRef)
		}
	}
	t.dir, t.id = dir, id
	c.log.Debug("resolved resource",
		zap.String("role", t.role),
		zap.String("name", t.name),
		zap.String("id", id))
	return nil
}

// assemble copies resolved resources into the staging tree. Resource
// directories are named by the declared module identifier; their internal
// content is copied verbatim (an importable package keeps whatever
// underscore naming convention it shipped with).
func (c *Compiler) assemble(staging string, p *profile.Profile, tasks []*task) error {
	for _, role := range roleDirs {
		if err := c.fs.MkdirAll(path.Join(staging, role), 0o755); err != nil {
			return fmt.Errorf("create role dir %s: %w", role, err)
		}
	}

	for _, t := range tasks {
		if t.skipped {
			continue
		}
		dest := path.Join(staging, t.role, t.name)
		if t.role == RoleAgents {
			// Agent personas are single files named by their declared name.
			info, err := c.fs.Stat(t.dir)
			if err == nil && !info.IsDir() {
				dest = path.Join(staging, t.role, t.name+path.Ext(t.dir))
			}
		}
		if err := storefs.CopyTree(c.fs, t.dir, dest); err != nil {
			return fmt.Errorf("copy %s %q: %w", t.role, t.name, err)
		}
	}

	// Preserve the source document alongside the compiled assets.
	if p.SourcePath != "" {
		if err := storefs.ImportFile(c.fs, p.SourcePath, path.Join(staging, p.Name+".md")); err != nil {
			c.log.Warn("could not copy profile document", zap.Error(err))
		}
	}
	return nil
}

func buildLock(hash string, tasks []*task) *api.LockRecord {
	now := time.Now().UTC().Format(time.RFC3339)
	resources := map[string][]api.LockedResource{}
	for _, t := range tasks {
		if t.skipped {
			continue
		}
		resources[t.role] = append(resources[t.role], api.LockedResource{
			Name:       t.name,
			Ref:        t.rawRef,
			ResolvedID: t.id,
			ResolvedAt: now,
		})
	}
	return &api.LockRecord{ProfileHash: hash, GeneratedAt: now, Resources: resources}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic task order keeps lock records stable.
	sort.Strings(keys)
	return keys
}
