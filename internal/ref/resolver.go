package ref

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/agentic-research/loadout/internal/storefs"
)

// CacheDir is the cache root, relative to the state filesystem.
const CacheDir = "cache"

// Options tune a Resolver. Zero values fall back to defaults.
type Options struct {
	Git        GitFetcher
	HTTPClient *http.Client
	// Timeout bounds each fetch attempt.
	Timeout time.Duration
	// Retries is the number of additional attempts after the first,
	// spaced by exponential backoff.
	Retries int
}

// Resolver resolves Refs against the content-addressed cache.
//
// Cache entries are immutable: an id always yields byte-identical content.
// Writes go to a staging directory and are renamed into place, so concurrent
// writers of the same key converge on one winner and a crashed run leaves no
// partial entry behind. Concurrent Resolve calls for the same ref string are
// collapsed through singleflight.
type Resolver struct {
	fs      billy.Filesystem
	idx     *Index
	git     GitFetcher
	client  *http.Client
	timeout time.Duration
	retries int
	log     *zap.Logger
	group   singleflight.Group
}

// NewResolver creates a Resolver over the state filesystem fs. idx may be
// shared between resolvers; it must outlive the Resolver.
func NewResolver(fs billy.Filesystem, idx *Index, log *zap.Logger, opts Options) *Resolver {
	if opts.Git == nil {
		opts.Git = gitCLI{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Resolver{
		fs:      fs,
		idx:     idx,
		git:     opts.Git,
		client:  opts.HTTPClient,
		timeout: opts.Timeout,
		retries: opts.Retries,
		log:     log,
	}
}

// Resolve resolves r to (dir, id): dir is the resolved location relative to
// the state filesystem, id the immutable identifier keying the cache entry.
// Calling Resolve twice with the same ref while the cache is warm performs
// no fetch and returns identical results.
func (rs *Resolver) Resolve(ctx context.Context, r Ref) (string, string, error) {
	type result struct{ dir, id string }
	v, err, _ := rs.group.Do(r.Raw, func() (any, error) {
		dir, id, err := rs.resolve(ctx, r)
		if err != nil {
			return nil, err
		}
		return result{dir, id}, nil
	})
	if err != nil {
		return "", "", err
	}
	res := v.(result)
	return res.dir, res.id, nil
}

func (rs *Resolver) resolve(ctx context.Context, r Ref) (string, string, error) {
	// Warm path: the index already pinned this exact ref and the entry is
	// still on disk.
	if r.Kind != KindLocal && rs.idx != nil {
		if id, ok, err := rs.idx.Lookup(r.Raw); err == nil && ok {
			if dir, err := rs.entryPath(r, id); err == nil {
				rs.log.Debug("ref cache hit", zap.String("ref", r.Raw), zap.String("id", id))
				return dir, id, nil
			}
		}
	}

	switch r.Kind {
	case KindGit:
		return rs.resolveGit(ctx, r)
	case KindURL:
		return rs.resolveURL(ctx, r)
	case KindLocal:
		return rs.resolveLocal(r)
	}
	return "", "", resolutionErrorf(r.Raw, "unsupported ref kind")
}

func (rs *Resolver) resolveGit(ctx context.Context, r Ref) (string, string, error) {
	var dir, commit string
	var cleanup func()
	err := rs.withRetry(ctx, r.Repo, func(attemptCtx context.Context) error {
		d, c, cl, err := rs.git.Fetch(attemptCtx, r.Repo, r.Revision)
		if err != nil {
			return err
		}
		dir, commit, cleanup = d, c, cl
		return nil
	})
	if err != nil {
		return "", "", &ResolutionError{Ref: r.Raw, Err: err}
	}
	defer cleanup()

	// Always cache the full tree under the commit; subdirectory and sub-path
	// selection happens in entryPath, so refs with and without #subdirectory=
	// share one entry instead of fighting over the key.
	if err := rs.storeTree(commit, dir); err != nil {
		return "", "", &ResolutionError{Ref: r.Raw, Err: err}
	}
	p, err := rs.entryPath(r, commit)
	if err != nil {
		// Do not pin a ref whose declared subdirectory or asset the tree
		// does not contain.
		return "", "", err
	}
	rs.record(r, commit)
	rs.log.Info("resolved git ref",
		zap.String("repo", r.Repo),
		zap.String("revision", r.Revision),
		zap.String("commit", commit))
	return p, commit, nil
}

// urlEntryFile is the fixed file name inside a URL cache entry. URLs with
// identical content share one entry regardless of their path basenames, so
// the name cannot come from any single URL.
const urlEntryFile = "content"

func (rs *Resolver) resolveURL(ctx context.Context, r Ref) (string, string, error) {
	var body []byte
	err := rs.withRetry(ctx, r.URL, func(attemptCtx context.Context) error {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, r.URL, nil)
		if err != nil {
			return err
		}
		resp, err := rs.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("unexpected status %s", resp.Status)
			if terminalStatus(resp.StatusCode) {
				return &terminalError{err: err}
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return "", "", &ResolutionError{Ref: r.Raw, Err: err}
	}

	// Content-addressed: identical content behind different URLs shares one
	// cache entry.
	id := contentID(body)
	if err := rs.storeBytes(id, urlEntryFile, body); err != nil {
		return "", "", &ResolutionError{Ref: r.Raw, Err: err}
	}
	rs.record(r, id)
	rs.log.Info("resolved url ref", zap.String("url", r.URL), zap.String("id", id))
	return path.Join(CacheDir, id, urlEntryFile), id, nil
}

// terminalStatus reports whether an HTTP status indicates a failure no
// retry can fix. Timeouts and rate limits stay retryable.
func terminalStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

func (rs *Resolver) resolveLocal(r Ref) (string, string, error) {
	abs, err := filepath.Abs(expandHome(r.Path))
	if err != nil {
		return "", "", &ResolutionError{Ref: r.Raw, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", resolutionErrorf(r.Raw, "local path does not exist: %s", abs)
	}

	// Keyed by path + mtime rather than content: cheap change detection for
	// local dev paths without hashing whole trees.
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", abs, info.ModTime().UnixNano())))
	id := hex.EncodeToString(sum[:])[:16]

	entry := path.Join(CacheDir, id)
	if info.IsDir() {
		if _, statErr := rs.fs.Stat(entry); statErr != nil {
			if err := rs.storeTree(id, abs); err != nil {
				return "", "", &ResolutionError{Ref: r.Raw, Err: err}
			}
		}
		return entry, id, nil
	}

	name := filepath.Base(abs)
	filePath := path.Join(entry, name)
	if _, statErr := rs.fs.Stat(filePath); statErr != nil {
		data, err := os.ReadFile(abs)
		if err != nil {
			return "", "", &ResolutionError{Ref: r.Raw, Err: err}
		}
		if err := rs.storeBytes(id, name, data); err != nil {
			return "", "", &ResolutionError{Ref: r.Raw, Err: err}
		}
	}
	return filePath, id, nil
}

// entryPath maps an id back to the resolved location for r, verifying the
// cache entry (and any declared sub-path) exists.
func (rs *Resolver) entryPath(r Ref, id string) (string, error) {
	entry := path.Join(CacheDir, id)
	if _, err := rs.fs.Stat(entry); err != nil {
		return "", err
	}
	switch r.Kind {
	case KindGit:
		p := entry
		if r.Subdirectory != "" {
			p = path.Join(p, r.Subdirectory)
			if _, err := rs.fs.Stat(p); err != nil {
				return "", resolutionErrorf(r.Raw, "subdirectory not found: %s", r.Subdirectory)
			}
		}
		if r.SubPath != "" {
			p = path.Join(p, r.SubPath)
			if _, err := rs.fs.Stat(p); err != nil {
				return "", resolutionErrorf(r.Raw, "asset not found: %s", r.SubPath)
			}
		}
		return p, nil
	case KindURL:
		p := path.Join(entry, urlEntryFile)
		if _, err := rs.fs.Stat(p); err != nil {
			return "", err
		}
		return p, nil
	}
	return entry, nil
}

// storeTree imports the OS tree at osSrc as cache entry id. No-op when the
// entry already exists; concurrent writers of the same id race on the final
// rename and the loser discards its staging copy.
func (rs *Resolver) storeTree(id, osSrc string) error {
	entry := path.Join(CacheDir, id)
	if _, err := rs.fs.Stat(entry); err == nil {
		return nil
	}
	staging := path.Join(CacheDir, fmt.Sprintf(".staging-%s-%d", id, os.Getpid()))
	if err := storefs.ImportTree(rs.fs, osSrc, staging); err != nil {
		_ = util.RemoveAll(rs.fs, staging)
		return err
	}
	return rs.commitStaging(staging, entry)
}

func (rs *Resolver) storeBytes(id, name string, data []byte) error {
	entry := path.Join(CacheDir, id)
	if _, err := rs.fs.Stat(entry); err == nil {
		return nil
	}
	staging := path.Join(CacheDir, fmt.Sprintf(".staging-%s-%d", id, os.Getpid()))
	if err := util.WriteFile(rs.fs, path.Join(staging, name), data, 0o644); err != nil {
		_ = util.RemoveAll(rs.fs, staging)
		return fmt.Errorf("write cache entry: %w", err)
	}
	return rs.commitStaging(staging, entry)
}

func (rs *Resolver) commitStaging(staging, entry string) error {
	if err := rs.fs.Rename(staging, entry); err != nil {
		_ = util.RemoveAll(rs.fs, staging)
		if _, statErr := rs.fs.Stat(entry); statErr == nil {
			// Lost the race to a concurrent writer; content is identical by
			// construction.
			return nil
		}
		return fmt.Errorf("commit cache entry %s: %w", entry, err)
	}
	return nil
}

func (rs *Resolver) record(r Ref, id string) {
	if rs.idx == nil {
		return
	}
	if err := rs.idx.Record(r.Raw, id); err != nil {
		rs.log.Warn("failed to record ref in index", zap.String("ref", r.Raw), zap.Error(err))
	}
}

// terminalError marks a fetch failure that retrying cannot fix.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// withRetry runs fn with a per-attempt timeout, retrying with exponential
// backoff. Terminal errors short-circuit; otherwise the last error wins.
func (rs *Resolver) withRetry(ctx context.Context, target string, fn func(context.Context) error) error {
	backoff := time.Second
	var err error
	for attempt := 0; attempt <= rs.retries; attempt++ {
		if attempt > 0 {
			rs.log.Warn("fetch failed, retrying",
				zap.String("target", target),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		attemptCtx, cancel := context.WithTimeout(ctx, rs.timeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		var term *terminalError
		if errors.As(err, &term) {
			return term.err
		}
	}
	return err
}

func contentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

func expandHome(p string) string {
	if len(p) >= 2 && p[0] == '~' && p[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
