package compile

import (
	"fmt"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/loadout/api"
	"github.com/agentic-research/loadout/internal/storefs"
)

// LockFileName is the lock record written into each compiled profile.
const LockFileName = "loadout.lock.json"

// ReadLock loads a lock record. A missing or unreadable lock is an error;
// callers treat it as "recompile".
func ReadLock(fs billy.Filesystem, path string) (*api.LockRecord, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read lock %s: %w", path, err)
	}
	var rec api.LockRecord
	if err := oj.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock %s: %w", path, err)
	}
	return &rec, nil
}

// WriteLock persists a lock record atomically (temp file + rename) so a
// crash mid-write never leaves a torn lock behind.
func WriteLock(fs billy.Filesystem, path string, rec *api.LockRecord) error {
	opts := ojg.Options{Sort: true, UseTags: true, OmitNil: true, Indent: 2}
	data, err := oj.Marshal(rec, &opts)
	if err != nil {
		return fmt.Errorf("encode lock: %w", err)
	}
	data = append(data, '\n')
	if err := storefs.WriteFileAtomic(fs, path, data); err != nil {
		return fmt.Errorf("write lock %s: %w", path, err)
	}
	return nil
}
