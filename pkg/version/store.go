// ABOUTME: Version store implementation backed by a flat file namespace
// ABOUTME: Append-only records per scope plus an atomically replaced current pointer

package version

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// CurrentFileName holds the scope's current pointer
	CurrentFileName = "CURRENT"

	// RecordSuffix is the extension of version record files
	RecordSuffix = ".rec"

	// maxAllocAttempts bounds retries when another process claims the same id
	maxAllocAttempts = 16

	// listPageSize is the page size used by Versions
	listPageSize = 64
)

// Options tune how records are written
type Options struct {
	Compression      Compression      // Content compression for new records
	CompressMinBytes int              // Smallest content worth compressing
	NoSync           bool             // Skip fsync; crash safety is lost
	Now              func() time.Time // Clock, defaults to time.Now
}

// Store persists versions for every scope under a root directory:
//
//	<root>/<user_id>/<thread_id>/v<seq>.rec
//	<root>/<user_id>/<thread_id>/CURRENT
//
// Writers of one scope are serialized by a per-scope mutex; readers never
// lock. Records are immutable once published.
type Store struct {
	root   string
	opts   Options
	scopes sync.Map // scope key -> *scopeState
}

type scopeState struct {
	mu      sync.Mutex
	lastSeq uint64 // Highest seq allocated, valid once loaded
	loaded  bool
}

// Open creates the root directory if needed and returns a store over it
func Open(root string, opts Options) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: store root is required", ErrInvalidArgument)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root %s: %w: %w", root, ErrStorageUnavailable, err)
	}
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{root: root, opts: opts}, nil
}

// Root returns the store's root directory
func (s *Store) Root() string {
	return s.root
}

func (s *Store) scopeDir(scope Scope) string {
	return filepath.Join(s.root, scope.UserID, scope.ThreadID)
}

func (s *Store) recordPath(scope Scope, seq uint64) string {
	return filepath.Join(s.scopeDir(scope), FormatID(seq)+RecordSuffix)
}

func (s *Store) currentPath(scope Scope) string {
	return filepath.Join(s.scopeDir(scope), CurrentFileName)
}

func (s *Store) state(scope Scope) *scopeState {
	key := scope.UserID + "\x00" + scope.ThreadID
	if st, ok := s.scopes.Load(key); ok {
		return st.(*scopeState)
	}
	st, _ := s.scopes.LoadOrStore(key, &scopeState{})
	return st.(*scopeState)
}

// AppendVersion persists content as a new version and moves the current
// pointer to it. The record is durable before the pointer names it, so a
// crash between the two steps leaves the previous pointer intact.
func (s *Store) AppendVersion(scope Scope, content string) (*Record, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	st := s.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	dir := s.scopeDir(scope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scope %s: %w: %w", scope, ErrStorageUnavailable, err)
	}

	if !st.loaded {
		seq, err := s.highestSeq(scope)
		if err != nil {
			return nil, err
		}
		st.lastSeq = seq
		st.loaded = true
	}

	createdAt := s.opts.Now().UTC()
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		seq := st.lastSeq + 1
		rec := &Record{
			Content:   content,
			VersionID: FormatID(seq),
			Seq:       seq,
			CreatedAt: createdAt,
			UserID:    scope.UserID,
			ThreadID:  scope.ThreadID,
		}

		data, err := encodeRecord(rec, s.opts.Compression, s.opts.CompressMinBytes)
		if err != nil {
			return nil, err
		}

		path := s.recordPath(scope, seq)
		err = publishFile(path, data, s.opts.NoSync)
		if errors.Is(err, os.ErrExist) {
			// Another process sharing the directory took this id.
			highest, scanErr := s.highestSeq(scope)
			if scanErr != nil {
				return nil, scanErr
			}
			st.lastSeq = max(highest, seq)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("writing %s in %s: %w: %w", rec.VersionID, scope, ErrStorageUnavailable, err)
		}
		st.lastSeq = seq

		if err := s.writePointer(scope, rec.VersionID, seq); err != nil {
			// The pointer still names the previous version, so nothing
			// references the record; keep history free of it.
			os.Remove(path)
			return nil, err
		}
		return rec, nil
	}

	return nil, fmt.Errorf("allocating version id in %s after %d attempts: %w", scope, maxAllocAttempts, ErrStorageUnavailable)
}

// GetVersion reads one version. Unknown or malformed ids report ErrNotFound.
func (s *Store) GetVersion(scope Scope, versionID string) (*Record, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	seq, err := ParseID(versionID)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q in %s", ErrNotFound, versionID, scope)
	}
	return s.readRecord(scope, seq)
}

func (s *Store) readRecord(scope Scope, seq uint64) (*Record, error) {
	path := s.recordPath(scope, seq)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: version %s in %s", ErrNotFound, FormatID(seq), scope)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w: %w", path, ErrStorageUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrConsistencyFault, err)
	}
	if rec.Seq != seq || rec.UserID != scope.UserID || rec.ThreadID != scope.ThreadID {
		return nil, fmt.Errorf("%s: %w: record belongs to %s/%s %s",
			path, ErrConsistencyFault, rec.UserID, rec.ThreadID, rec.VersionID)
	}
	return rec, nil
}

// Current returns the version id the pointer names without reading the record
func (s *Store) Current(scope Scope) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	p, err := s.readPointer(scope)
	if err != nil {
		return "", err
	}
	return p.VersionID, nil
}

// GetCurrent returns the record the current pointer names. A pointer to a
// missing record is a consistency fault, not a normal absence.
func (s *Store) GetCurrent(scope Scope) (*Record, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	p, err := s.readPointer(scope)
	if err != nil {
		return nil, err
	}

	rec, err := s.readRecord(scope, p.Seq)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: current pointer of %s names missing version %s", ErrConsistencyFault, scope, p.VersionID)
	}
	return rec, err
}

func (s *Store) readPointer(scope Scope) (diskPointer, error) {
	path := s.currentPath(scope)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return diskPointer{}, fmt.Errorf("%w: no current draft in %s", ErrNotFound, scope)
	}
	if err != nil {
		return diskPointer{}, fmt.Errorf("reading %s: %w: %w", path, ErrStorageUnavailable, err)
	}

	p, err := decodePointer(data)
	if err != nil {
		return diskPointer{}, fmt.Errorf("%s: %w: %w", path, ErrConsistencyFault, err)
	}
	if seq, _ := ParseID(p.VersionID); seq != p.Seq {
		return diskPointer{}, fmt.Errorf("%s: %w: pointer id %s disagrees with seq %d", path, ErrConsistencyFault, p.VersionID, p.Seq)
	}
	return p, nil
}

// writePointer replaces the scope's pointer. A nil error means readers see
// versionID; any other error leaves the previous pointer in place.
func (s *Store) writePointer(scope Scope, versionID string, seq uint64) error {
	data, err := encodePointer(diskPointer{
		VersionID: versionID,
		Seq:       seq,
		UpdatedAt: s.opts.Now().UTC(),
	})
	if err != nil {
		return err
	}
	err = replaceFile(s.currentPath(scope), data, s.opts.NoSync)
	if errors.Is(err, errNotDurable) {
		// Readers already follow the new pointer; it cannot be rolled back.
		return nil
	}
	if err != nil {
		return fmt.Errorf("moving current pointer of %s to %s: %w: %w", scope, versionID, ErrStorageUnavailable, err)
	}
	return nil
}

// Revert moves the current pointer to an existing version. No record is
// created; on failure the pointer is unchanged.
func (s *Store) Revert(scope Scope, versionID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	seq, err := ParseID(versionID)
	if err != nil {
		return fmt.Errorf("%w: version %q in %s", ErrNotFound, versionID, scope)
	}

	st := s.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, err := s.readRecord(scope, seq); err != nil {
		return err
	}
	return s.writePointer(scope, versionID, seq)
}

// ListVersions returns every version id of the scope, oldest first
func (s *Store) ListVersions(scope Scope) ([]string, error) {
	return s.ListVersionsAfter(scope, "", 0)
}

// ListVersionsAfter returns up to limit ids that sort after the given id
// (all ids when after is empty, no bound when limit <= 0). Callers resume a
// listing by passing the last id they saw.
func (s *Store) ListVersionsAfter(scope Scope, after string, limit int) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	var afterSeq uint64
	if after != "" {
		seq, err := ParseID(after)
		if err != nil {
			return nil, err
		}
		afterSeq = seq
	}

	seqs, err := s.scanSeqs(scope)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seqs))
	for _, seq := range seqs {
		if seq <= afterSeq {
			continue
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, FormatID(seq))
	}
	return ids, nil
}

// Versions lazily yields version ids oldest first, reading the directory one
// page at a time. Iteration stops at the first error.
func (s *Store) Versions(scope Scope) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		after := ""
		for {
			page, err := s.ListVersionsAfter(scope, after, listPageSize)
			if err != nil {
				yield("", err)
				return
			}
			for _, id := range page {
				if !yield(id, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}
			after = page[len(page)-1]
		}
	}
}

// scanSeqs lists the sequence numbers of all published records, ascending
func (s *Store) scanSeqs(scope Scope) ([]uint64, error) {
	dir := s.scopeDir(scope)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w: %w", dir, ErrStorageUnavailable, err)
	}

	var seqs []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if seq, ok := parseRecordName(entry.Name()); ok {
			seqs = append(seqs, seq)
		}
	}
	slices.Sort(seqs)
	return seqs, nil
}

func (s *Store) highestSeq(scope Scope) (uint64, error) {
	seqs, err := s.scanSeqs(scope)
	if err != nil || len(seqs) == 0 {
		return 0, err
	}
	return seqs[len(seqs)-1], nil
}

// parseRecordName accepts exactly "v<seq>.rec"
func parseRecordName(name string) (uint64, bool) {
	base, ok := strings.CutSuffix(name, RecordSuffix)
	if !ok {
		return 0, false
	}
	seq, err := ParseID(base)
	return seq, err == nil
}
