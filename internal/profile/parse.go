package profile

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentic-research/loadout/api"
)

// Parse parses a profile document: YAML frontmatter between --- fences,
// markdown body after. The context-manager session alias is folded into the
// canonical context field.
func Parse(data []byte) (*Profile, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	rest, ok := strings.CutPrefix(text, "---\n")
	if !ok {
		return nil, &api.ValidationError{Field: "frontmatter", Reason: "document must start with ---"}
	}

	head, body, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		head, ok = strings.CutSuffix(rest, "\n---")
		if !ok {
			return nil, &api.ValidationError{Field: "frontmatter", Reason: "unterminated --- header"}
		}
		body = ""
	}

	var p Profile
	if err := yaml.Unmarshal([]byte(head), &p); err != nil {
		return nil, &api.ValidationError{Field: "frontmatter", Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if p.Name == "" {
		return nil, &api.ValidationError{Field: "name", Reason: "profile name is required"}
	}
	if p.Session != nil && p.Session.Context == nil && p.Session.ContextManager != nil {
		p.Session.Context = p.Session.ContextManager
		p.Session.ContextManager = nil
	}
	p.Body = strings.TrimSpace(body)
	return &p, nil
}
