// Package profile parses profile documents (YAML frontmatter + markdown
// body), discovers them across search paths, applies "extends" inheritance,
// and hashes specifications for change detection.
package profile

// ModuleRef declares one module a profile mounts: its user-facing id, the
// reference its source resolves from, and its configuration map.
type ModuleRef struct {
	Module string         `yaml:"module" json:"module"`
	Source string         `yaml:"source,omitempty" json:"source,omitempty"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Session declares the two required kernel modules of a session.
type Session struct {
	Orchestrator *ModuleRef `yaml:"orchestrator" json:"orchestrator"`
	Context      *ModuleRef `yaml:"context" json:"context"`

	// ContextManager is a legacy alias for Context; Parse folds it in.
	ContextManager *ModuleRef `yaml:"context-manager,omitempty" json:"-"`
}

// Profile is one parsed profile specification.
type Profile struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
	// Extends names a parent profile merged underneath this one.
	Extends string `yaml:"extends,omitempty" json:"extends,omitempty"`

	Session   *Session    `yaml:"session" json:"session"`
	Providers []ModuleRef `yaml:"providers" json:"providers"`
	Tools     []ModuleRef `yaml:"tools" json:"tools"`
	Hooks     []ModuleRef `yaml:"hooks" json:"hooks"`

	// Agents maps agent name to a file ref; Context maps context name to a
	// directory ref.
	Agents  map[string]string `yaml:"agents" json:"agents"`
	Context map[string]string `yaml:"context" json:"context"`

	// Body is the markdown instruction text after the frontmatter.
	Body string `yaml:"-" json:"-"`
	// SourcePath is where the document was loaded from, when known.
	SourcePath string `yaml:"-" json:"-"`
}

// Orchestrator returns the declared orchestrator module, or nil.
func (p *Profile) Orchestrator() *ModuleRef {
	if p.Session == nil {
		return nil
	}
	return p.Session.Orchestrator
}

// ContextManager returns the declared context module, or nil.
func (p *Profile) ContextManager() *ModuleRef {
	if p.Session == nil {
		return nil
	}
	return p.Session.Context
}
