package profile

// Merge merges child over parent: lists concatenate parent-first, maps
// deep-merge with child entries winning, scalars override when the child
// sets them. Applied once per extends link, before any resolution begins.
func Merge(parent, child *Profile) *Profile {
	out := &Profile{
		Name:        override(parent.Name, child.Name),
		Version:     override(parent.Version, child.Version),
		Description: override(parent.Description, child.Description),
		// The merged profile is fully flattened; it no longer extends.
		Extends:    "",
		Session:    mergeSession(parent.Session, child.Session),
		Providers:  concatRefs(parent.Providers, child.Providers),
		Tools:      concatRefs(parent.Tools, child.Tools),
		Hooks:      concatRefs(parent.Hooks, child.Hooks),
		Agents:     mergeStringMap(parent.Agents, child.Agents),
		Context:    mergeStringMap(parent.Context, child.Context),
		Body:       override(parent.Body, child.Body),
		SourcePath: child.SourcePath,
	}
	return out
}

func override(parent, child string) string {
	if child != "" {
		return child
	}
	return parent
}

func mergeSession(parent, child *Session) *Session {
	if parent == nil {
		return child
	}
	if child == nil {
		return parent
	}
	out := &Session{Orchestrator: parent.Orchestrator, Context: parent.Context}
	if child.Orchestrator != nil {
		out.Orchestrator = child.Orchestrator
	}
	if child.Context != nil {
		out.Context = child.Context
	}
	return out
}

func concatRefs(parent, child []ModuleRef) []ModuleRef {
	if len(parent) == 0 {
		return child
	}
	out := make([]ModuleRef, 0, len(parent)+len(child))
	out = append(out, parent...)
	out = append(out, child...)
	return out
}

func mergeStringMap(parent, child map[string]string) map[string]string {
	if len(parent) == 0 {
		return child
	}
	out := make(map[string]string, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}
