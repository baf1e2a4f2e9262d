package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// Hash returns a stable sha256 hex digest over every field of the profile
// that affects compilation output, including the instruction body. Any byte
// change to the specification changes the hash.
func Hash(p *Profile) string {
	doc := map[string]any{
		"name":        p.Name,
		"version":     p.Version,
		"description": p.Description,
		"extends":     p.Extends,
		"session":     p.Session,
		"providers":   p.Providers,
		"tools":       p.Tools,
		"hooks":       p.Hooks,
		"agents":      p.Agents,
		"context":     p.Context,
		"body":        p.Body,
	}
	opts := ojg.Options{Sort: true, UseTags: true, OmitNil: true}
	data, err := oj.Marshal(doc, &opts)
	if err != nil {
		// Marshal of plain maps and tagged structs cannot fail; keep a
		// deterministic fallback anyway.
		data = []byte(fmt.Sprintf("%#v", p))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
