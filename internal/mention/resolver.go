// Package mention resolves @mention cross-references embedded in free text
// into deduplicated context messages.
//
// Two shapes are recognized: "@context-key:relative/path" resolves against
// a named, pre-compiled context directory, and "@relative/path" resolves
// against a designated working root. Resolution is an iterative worklist
// (FIFO queue + visited set), never call-stack recursion, so reference
// cycles terminate and memory stays bounded. Queue order is breadth-first:
// all mentions of a document are enqueued before any of the documents they
// load are scanned.
//
// Resolution never fails the caller: unknown keys, escaping paths, missing
// or oversized files are skipped with at most a logged warning.
package mention

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"

	"github.com/agentic-research/loadout/api"
)

// DefaultMaxFileSize caps how large a mentioned file may be. Larger files
// are skipped, not truncated.
const DefaultMaxFileSize = 1 << 20

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_][A-Za-z0-9_.:/-]*)`)

// Resolver resolves mentions for one compiled profile. A Resolver is
// stateless across calls; a single Resolve invocation is single-threaded
// (its ordering and dedup guarantees depend on sequential processing), but
// independent invocations may run concurrently.
type Resolver struct {
	// ContextDirs maps context keys to pre-compiled context directories
	// (absolute OS paths).
	ContextDirs map[string]string
	// MaxFileSize overrides DefaultMaxFileSize when positive.
	MaxFileSize int64

	Log *zap.Logger
}

type entry struct {
	content  string
	hash     string
	mentions []string
	paths    []string
}

// Resolve parses all mentions out of texts and resolves them, following
// mentions found inside loaded content, until the worklist empties. It
// returns one message per unique content hash in first-discovery order,
// each credited with every mention and path that produced it.
func (r *Resolver) Resolve(workingRoot string, texts ...string) []api.ContextMessage {
	maxSize := r.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	workingRoot = filepath.Clean(workingRoot)
	rootFS := osfs.New(workingRoot)

	var queue []string
	seenToken := map[string]bool{}
	enqueue := func(text string) {
		for _, m := range parseMentions(text) {
			if !seenToken[m] {
				seenToken[m] = true
				queue = append(queue, m)
			}
		}
	}
	for _, text := range texts {
		enqueue(text)
	}

	visited := map[string]bool{}
	byHash := map[string]*entry{}
	var order []*entry

	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]

		fsys, rel, abs, ok := r.locate(m, rootFS, workingRoot, log)
		if !ok || visited[abs] {
			continue
		}

		info, err := fsys.Stat(rel)
		if err != nil || info.IsDir() {
			log.Debug("mention does not resolve to a file", zap.String("mention", "@"+m))
			continue
		}
		if info.Size() > maxSize {
			log.Warn("mentioned file exceeds size limit",
				zap.String("mention", "@"+m),
				zap.Int64("size", info.Size()))
			continue
		}

		visited[abs] = true
		data, err := util.ReadFile(fsys, rel)
		if err != nil {
			log.Debug("mentioned file unreadable", zap.String("mention", "@"+m))
			continue
		}

		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])
		if e, dup := byHash[hash]; dup {
			// Same bytes behind a different path: credit the source
			// instead of emitting a duplicate message.
			e.mentions = append(e.mentions, "@"+m)
			e.paths = append(e.paths, abs)
		} else {
			e := &entry{content: string(data), hash: hash, mentions: []string{"@" + m}, paths: []string{abs}}
			byHash[hash] = e
			order = append(order, e)
		}

		enqueue(string(data))
	}

	messages := make([]api.ContextMessage, 0, len(order))
	for _, e := range order {
		messages = append(messages, api.ContextMessage{
			Content:  e.content,
			Mentions: e.mentions,
			Paths:    e.paths,
			Hash:     e.hash,
		})
	}
	return messages
}

// locate maps a mention token to (filesystem, relative path, absolute
// path). Unsafe or unknown mentions return ok=false; the attempted path is
// never logged for escaping mentions.
func (r *Resolver) locate(m string, rootFS billy.Filesystem, workingRoot string, log *zap.Logger) (billy.Filesystem, string, string, bool) {
	if key, sub, isKeyed := strings.Cut(m, ":"); isKeyed {
		dir, known := r.ContextDirs[key]
		if !known || sub == "" {
			log.Warn("unknown context key in mention", zap.String("mention", "@"+m))
			return nil, "", "", false
		}
		rel, abs, ok := containedPath(dir, sub)
		if !ok {
			log.Warn("mention escapes context directory", zap.String("mention", "@"+m))
			return nil, "", "", false
		}
		return osfs.New(dir), rel, abs, true
	}

	rel, abs, ok := containedPath(workingRoot, m)
	if !ok {
		log.Warn("mention escapes working root", zap.String("mention", "@"+m))
		return nil, "", "", false
	}
	return rootFS, rel, abs, true
}

// containedPath joins sub onto root and verifies the result stays inside
// root.
func containedPath(root, sub string) (rel, abs string, ok bool) {
	abs = filepath.Join(root, filepath.FromSlash(sub))
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", false
	}
	return rel, abs, true
}

// parseMentions extracts mention tokens from text, stripping trailing
// punctuation so "@docs/guide.md." in prose resolves.
func parseMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		token := strings.TrimRight(match[1], ".,;:!?)")
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}
