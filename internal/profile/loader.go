package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/agentic-research/loadout/api"
)

// Loader discovers profile documents (*.md) across an ordered list of
// search paths. Earlier paths shadow later ones, so a project profile wins
// over a user or collection profile of the same name.
type Loader struct {
	searchPaths []string
	log         *zap.Logger
}

func NewLoader(searchPaths []string, log *zap.Logger) *Loader {
	return &Loader{searchPaths: searchPaths, log: log}
}

// Entry is one discovered profile document.
type Entry struct {
	Name string
	Path string
}

// List returns every discoverable profile, first occurrence per name.
func (l *Loader) List() []Entry {
	seen := map[string]bool{}
	var out []Entry
	for _, dir := range l.searchPaths {
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
				continue
			}
			name := strings.TrimSuffix(f.Name(), ".md")
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, Entry{Name: name, Path: filepath.Join(dir, f.Name())})
		}
	}
	return out
}

// Load loads a profile by name and flattens its extends chain: each parent
// is loaded, merged underneath, and the result returned as a single profile
// with no remaining inheritance.
func (l *Loader) Load(name string) (*Profile, error) {
	return l.load(name, map[string]bool{})
}

func (l *Loader) load(name string, seen map[string]bool) (*Profile, error) {
	if seen[name] {
		return nil, &api.ValidationError{Field: "extends", Reason: fmt.Sprintf("inheritance cycle through %q", name)}
	}
	seen[name] = true

	path, err := l.find(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	p.SourcePath = path

	if p.Extends == "" {
		return p, nil
	}

	// An extends value may carry a collection qualifier; lookup runs on the
	// bare profile name within the same search paths.
	parentName := p.Extends
	if i := strings.LastIndex(parentName, "/"); i >= 0 {
		parentName = parentName[i+1:]
	}
	l.log.Debug("loading parent profile",
		zap.String("profile", name),
		zap.String("extends", p.Extends))
	parent, err := l.load(parentName, seen)
	if err != nil {
		return nil, fmt.Errorf("profile %s extends %s: %w", name, p.Extends, err)
	}
	return Merge(parent, p), nil
}

func (l *Loader) find(name string) (string, error) {
	for _, dir := range l.searchPaths {
		path := filepath.Join(dir, name+".md")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &api.NotFoundError{Path: "profile " + name}
}
