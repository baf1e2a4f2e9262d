// Package modsource is the runtime-side lookup translating a module
// identifier plus a profile hint into a path inside a compiled profile
// directory. Pure apart from an existence check.
package modsource

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/agentic-research/loadout/api"
)

// roleTable maps module id prefixes to mount-type directories, checked in
// order. More specific patterns come first so "hooks-status-context" lands
// in hooks rather than context.
var roleTable = []struct {
	prefix string
	role   string
}{
	{"provider", "providers"},
	{"tool", "tools"},
	{"hook", "hooks"},
	{"loop", "orchestrator"},
	{"orchestrator", "orchestrator"},
	{"context", "context"},
}

// RoleFor returns the mount-type directory for a module identifier, or a
// ValidationError when no pattern matches.
func RoleFor(moduleID string) (string, error) {
	for _, entry := range roleTable {
		if strings.HasPrefix(moduleID, entry.prefix) {
			return entry.role, nil
		}
	}
	return "", &api.ValidationError{
		Field:  "module",
		Reason: "cannot determine mount type for " + moduleID,
	}
}

// Resolver locates compiled module sources under a state directory.
type Resolver struct {
	StateDir string
}

// Locate resolves a module identifier to
// {state}/profiles/{collection}/{profile}/{role}/{module}. The profile hint
// has the form "collection/profile". A missing directory is a
// NotFoundError, never an empty result.
func (r *Resolver) Locate(moduleID, profileHint string) (string, error) {
	collection, prof, ok := strings.Cut(profileHint, "/")
	if !ok || collection == "" || prof == "" {
		return "", &api.ValidationError{
			Field:  "profile_hint",
			Reason: "expected collection/profile, got " + profileHint,
		}
	}
	role, err := RoleFor(moduleID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(r.StateDir, "profiles", collection, prof, role, moduleID)
	if _, err := os.Stat(dir); err != nil {
		return "", &api.NotFoundError{Path: dir}
	}
	return dir, nil
}
