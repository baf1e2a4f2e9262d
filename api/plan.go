// Package api defines the contract types the loadout engine produces and an
// external runtime consumes: the mount plan, its entries, the lock record
// used for change detection, and the error kinds callers dispatch on.
package api

// MountEntry describes one runnable module the runtime should mount.
type MountEntry struct {
	// Module is the user-facing module identifier (hyphenated).
	Module string `json:"module"`
	// Source is the filesystem path of the compiled module package.
	Source string `json:"source,omitempty"`
	// Config is the module configuration map, passed through verbatim.
	Config map[string]any `json:"config,omitempty"`
}

// SessionConfig carries the per-session identity plus the two required
// kernel modules: the orchestrator loop and the context manager.
type SessionConfig struct {
	SessionID    string     `json:"session_id"`
	Profile      string     `json:"profile"`
	CreatedAt    string     `json:"created_at"`
	Orchestrator MountEntry `json:"orchestrator"`
	Context      MountEntry `json:"context"`
}

// MountPlan is the fully resolved configuration a runtime loads a session
// from. Kernel resources (orchestrator, context, providers, tools, hooks)
// are referenced by source path; app-layer data (agents, context messages)
// is embedded as text.
type MountPlan struct {
	Session   SessionConfig `json:"session"`
	Providers []MountEntry  `json:"providers"`
	Tools     []MountEntry  `json:"tools"`
	Hooks     []MountEntry  `json:"hooks"`
	// Agents maps agent name to embedded persona content.
	Agents map[string]string `json:"agents,omitempty"`
	// ContextMessages is omitted entirely when empty so consumers unaware
	// of mention resolution keep working.
	ContextMessages []ContextMessage `json:"context_messages,omitempty"`
}

// ContextMessage is one deduplicated content block produced by mention
// resolution. Mentions and Paths credit every reference that produced it.
type ContextMessage struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions"`
	Paths    []string `json:"paths"`
	// Hash is the sha256 of Content, the deduplication key.
	Hash string `json:"hash"`
}

// LockedResource records how one declared resource resolved.
type LockedResource struct {
	Name       string `json:"name"`
	Ref        string `json:"ref"`
	ResolvedID string `json:"resolved_id"`
	ResolvedAt string `json:"resolved_at"`
}

// LockRecord pairs a profile specification hash with the resolved identity
// of every resource, grouped by role. A matching ProfileHash lets the
// compiler skip recompilation.
type LockRecord struct {
	ProfileHash string                      `json:"profile_hash"`
	GeneratedAt string                      `json:"generated_at"`
	Resources   map[string][]LockedResource `json:"resources"`
}
