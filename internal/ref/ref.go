// Package ref resolves external references (repository revisions, URLs,
// local paths) to immutable entries in a content-addressed cache. The cache
// lives under "cache/" in the engine's state filesystem; a small SQLite
// index maps exact ref strings to the immutable identifier they pinned to,
// so a warm cache never touches the network.
package ref

import (
	"fmt"
	"strings"
)

// Kind discriminates the reference variants.
type Kind int

const (
	// KindGit is a repository revision: git+https://host/org/repo@rev with
	// an optional repo-relative path after the rev and an optional
	// #subdirectory= fragment.
	KindGit Kind = iota
	// KindURL is a direct http(s) URL to a single file.
	KindURL
	// KindLocal is an absolute or relative filesystem path.
	KindLocal
)

// Ref is a parsed, immutable pointer to external content.
type Ref struct {
	Raw  string
	Kind Kind

	// Repository refs.
	Repo         string // clone URL, git+ prefix stripped
	Revision     string // branch, tag, or commit; pinned to a commit on resolve
	SubPath      string // repo-relative path after the rev, may be empty
	Subdirectory string // #subdirectory= fragment, may be empty

	// URL refs.
	URL string

	// Local refs.
	Path string
}

// Parse parses a reference string into a Ref.
//
// Accepted forms:
//
//	git+https://github.com/org/repo@main
//	git+https://github.com/org/repo@main/agents/researcher.md
//	git+https://github.com/org/repo@v1#subdirectory=packages/tools
//	https://example.com/doc.md
//	/absolute/path or ./relative/path or file:///absolute/path
func Parse(s string) (Ref, error) {
	r := Ref{Raw: s}

	switch {
	case strings.HasPrefix(s, "git+"):
		r.Kind = KindGit
		rest := strings.TrimPrefix(s, "git+")
		if frag, ok := cutFragment(&rest); ok {
			sub, found := strings.CutPrefix(frag, "subdirectory=")
			if !found {
				return Ref{}, fmt.Errorf("invalid git ref %q: unknown fragment %q", s, frag)
			}
			r.Subdirectory = sub
		}
		scheme := strings.Index(rest, "://")
		if scheme < 0 {
			return Ref{}, fmt.Errorf("invalid git ref %q: missing URL scheme", s)
		}
		// The revision separator must sit in the URL path; an @ inside the
		// authority is userinfo (git@host), not a revision.
		authEnd := len(rest)
		if i := strings.Index(rest[scheme+3:], "/"); i >= 0 {
			authEnd = scheme + 3 + i
		}
		at := strings.LastIndex(rest, "@")
		if at < authEnd {
			return Ref{}, fmt.Errorf("invalid git ref format %q: missing @ref", s)
		}
		r.Repo = rest[:at]
		revPart := rest[at+1:]
		rev, sub, _ := strings.Cut(revPart, "/")
		if rev == "" {
			return Ref{}, fmt.Errorf("invalid git ref format %q: empty revision", s)
		}
		r.Revision = rev
		r.SubPath = sub
		return r, nil

	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		r.Kind = KindURL
		r.URL = s
		return r, nil

	case strings.HasPrefix(s, "file://"):
		r.Kind = KindLocal
		r.Path = strings.TrimPrefix(s, "file://")
		return r, nil

	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "./"), strings.HasPrefix(s, "../"), strings.HasPrefix(s, "~/"):
		r.Kind = KindLocal
		r.Path = s
		return r, nil
	}

	return Ref{}, fmt.Errorf("unsupported ref scheme: %q", s)
}

// cutFragment splits a trailing #fragment off *s, returning the fragment.
func cutFragment(s *string) (string, bool) {
	i := strings.LastIndex(*s, "#")
	if i < 0 {
		return "", false
	}
	frag := (*s)[i+1:]
	*s = (*s)[:i]
	return frag, true
}

func (k Kind) String() string {
	switch k {
	case KindGit:
		return "git"
	case KindURL:
		return "url"
	case KindLocal:
		return "local"
	}
	return "unknown"
}
