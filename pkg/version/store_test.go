// ABOUTME: Tests for the file-backed version store
// ABOUTME: Verifies monotonic ids, revert, isolation and crash-consistency faults

package version

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func setupTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	opts.NoSync = true
	vs, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return vs
}

func TestAppendAndGetCurrent(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	rec, err := vs.AppendVersion(scope, "Hello")
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if rec.VersionID != "v1" {
		t.Errorf("Expected v1, got %s", rec.VersionID)
	}

	rec, err = vs.AppendVersion(scope, "Hello world")
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if rec.VersionID != "v2" {
		t.Errorf("Expected v2, got %s", rec.VersionID)
	}

	current, err := vs.GetCurrent(scope)
	if err != nil {
		t.Fatalf("Failed to get current: %v", err)
	}
	if current.Content != "Hello world" || current.VersionID != "v2" {
		t.Errorf("Expected {Hello world v2}, got {%s %s}", current.Content, current.VersionID)
	}
	if current.UserID != "u1" || current.ThreadID != "t1" {
		t.Errorf("Expected scope u1/t1, got %s/%s", current.UserID, current.ThreadID)
	}

	if err := vs.Revert(scope, "v1"); err != nil {
		t.Fatalf("Failed to revert: %v", err)
	}

	current, err = vs.GetCurrent(scope)
	if err != nil {
		t.Fatalf("Failed to get current: %v", err)
	}
	if current.Content != "Hello" || current.VersionID != "v1" {
		t.Errorf("Expected {Hello v1}, got {%s %s}", current.Content, current.VersionID)
	}

	ids, err := vs.ListVersions(scope)
	if err != nil {
		t.Fatalf("Failed to list versions: %v", err)
	}
	if !slices.Equal(ids, []string{"v1", "v2"}) {
		t.Errorf("Expected [v1 v2], got %v", ids)
	}
}

func TestAppendMonotonicity(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	var prev string
	for i := 0; i < 25; i++ {
		content := fmt.Sprintf("draft %d", i)
		rec, err := vs.AppendVersion(scope, content)
		if err != nil {
			t.Fatalf("Failed to append %d: %v", i, err)
		}
		if prev != "" && CompareIDs(prev, rec.VersionID) >= 0 {
			t.Errorf("Expected %s > %s", rec.VersionID, prev)
		}
		prev = rec.VersionID

		current, err := vs.GetCurrent(scope)
		if err != nil {
			t.Fatalf("Failed to get current: %v", err)
		}
		if current.Content != content {
			t.Errorf("Expected %q, got %q", content, current.Content)
		}
	}

	ids, err := vs.ListVersions(scope)
	if err != nil {
		t.Fatalf("Failed to list versions: %v", err)
	}
	if len(ids) != 25 {
		t.Fatalf("Expected 25 versions, got %d", len(ids))
	}
	// v10 must follow v9, not v1
	if ids[9] != "v10" {
		t.Errorf("Expected v10 at index 9, got %s", ids[9])
	}
}

func TestAppendEmptyContent(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	if _, err := vs.AppendVersion(scope, ""); err != nil {
		t.Fatalf("Failed to append empty content: %v", err)
	}
	current, err := vs.GetCurrent(scope)
	if err != nil {
		t.Fatalf("Failed to get current: %v", err)
	}
	if current.Content != "" {
		t.Errorf("Expected empty content, got %q", current.Content)
	}
}

func TestRevertKeepsHistory(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	for _, content := range []string{"one", "two", "three"} {
		if _, err := vs.AppendVersion(scope, content); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	if err := vs.Revert(scope, "v1"); err != nil {
		t.Fatalf("Failed to revert: %v", err)
	}

	current, _ := vs.GetCurrent(scope)
	if current.Content != "one" {
		t.Errorf("Expected one, got %s", current.Content)
	}

	ids, _ := vs.ListVersions(scope)
	if !slices.Equal(ids, []string{"v1", "v2", "v3"}) {
		t.Errorf("Expected [v1 v2 v3], got %v", ids)
	}

	// Appending after a revert continues the sequence
	rec, err := vs.AppendVersion(scope, "four")
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if rec.VersionID != "v4" {
		t.Errorf("Expected v4, got %s", rec.VersionID)
	}
}

func TestRevertIdempotent(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	vs.AppendVersion(scope, "one")
	vs.AppendVersion(scope, "two")
	vs.AppendVersion(scope, "three")

	for i := 0; i < 2; i++ {
		if err := vs.Revert(scope, "v2"); err != nil {
			t.Fatalf("Failed to revert (call %d): %v", i+1, err)
		}
		current, err := vs.GetCurrent(scope)
		if err != nil {
			t.Fatalf("Failed to get current: %v", err)
		}
		if current.VersionID != "v2" || current.Content != "two" {
			t.Errorf("Expected {two v2}, got {%s %s}", current.Content, current.VersionID)
		}
	}

	ids, _ := vs.ListVersions(scope)
	if len(ids) != 3 {
		t.Errorf("Expected 3 versions, got %d", len(ids))
	}
}

func TestRevertUnknownVersion(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	vs.AppendVersion(scope, "one")
	vs.AppendVersion(scope, "two")

	for _, id := range []string{"v_nonexistent", "v9", "", "v0", "v01"} {
		err := vs.Revert(scope, id)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Revert(%q): expected ErrNotFound, got %v", id, err)
		}
	}

	current, err := vs.GetCurrent(scope)
	if err != nil {
		t.Fatalf("Failed to get current: %v", err)
	}
	if current.VersionID != "v2" {
		t.Errorf("Expected pointer unchanged at v2, got %s", current.VersionID)
	}
}

func TestEmptyScope(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "fresh"}

	if _, err := vs.GetCurrent(scope); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := vs.Current(scope); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	ids, err := vs.ListVersions(scope)
	if err != nil {
		t.Fatalf("Failed to list versions: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Expected no versions, got %v", ids)
	}

	if err := vs.Revert(scope, "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestScopeIsolation(t *testing.T) {
	vs := setupTestStore(t, Options{})
	ax := Scope{UserID: "userA", ThreadID: "threadX"}
	ay := Scope{UserID: "userA", ThreadID: "threadY"}
	bx := Scope{UserID: "userB", ThreadID: "threadX"}

	vs.AppendVersion(ax, "a-x 1")
	vs.AppendVersion(ax, "a-x 2")
	vs.AppendVersion(ay, "a-y 1")

	if _, err := vs.GetCurrent(bx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected userB/threadX to be empty, got %v", err)
	}

	current, _ := vs.GetCurrent(ay)
	if current.Content != "a-y 1" || current.VersionID != "v1" {
		t.Errorf("Expected {a-y 1 v1}, got {%s %s}", current.Content, current.VersionID)
	}

	// v2 exists only in threadX
	if err := vs.Revert(ay, "v2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound reverting threadY to v2, got %v", err)
	}

	if err := vs.Revert(ax, "v1"); err != nil {
		t.Fatalf("Failed to revert: %v", err)
	}
	current, _ = vs.GetCurrent(ay)
	if current.Content != "a-y 1" {
		t.Errorf("Revert in threadX leaked into threadY: %s", current.Content)
	}
}

func TestInvalidScope(t *testing.T) {
	vs := setupTestStore(t, Options{})

	tests := []Scope{
		{UserID: "", ThreadID: "t1"},
		{UserID: "u1", ThreadID: ""},
		{UserID: "   ", ThreadID: "t1"},
		{UserID: "..", ThreadID: "t1"},
		{UserID: "u1", ThreadID: "../escape"},
		{UserID: "u1/u2", ThreadID: "t1"},
		{UserID: "u1", ThreadID: ".hidden"},
		{UserID: strings.Repeat("x", MaxIDLength+1), ThreadID: "t1"},
	}

	for _, scope := range tests {
		if _, err := vs.AppendVersion(scope, "x"); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("AppendVersion(%q): expected ErrInvalidArgument, got %v", scope, err)
		}
		if _, err := vs.GetCurrent(scope); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("GetCurrent(%q): expected ErrInvalidArgument, got %v", scope, err)
		}
	}

	entries, _ := os.ReadDir(vs.Root())
	if len(entries) != 0 {
		t.Errorf("Expected no I/O for invalid scopes, found %d entries", len(entries))
	}
}

func TestConcurrentAppendSameScope(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	const writers = 16
	var wg sync.WaitGroup
	ids := make([]string, writers)
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := vs.AppendVersion(scope, fmt.Sprintf("writer %d", i))
			errs[i] = err
			if rec != nil {
				ids[i] = rec.VersionID
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Writer %d failed: %v", i, err)
		}
	}

	slices.SortFunc(ids, CompareIDs)
	for i, id := range ids {
		if want := FormatID(uint64(i + 1)); id != want {
			t.Errorf("Expected %s at position %d, got %s", want, i, id)
		}
	}

	listed, _ := vs.ListVersions(scope)
	if len(listed) != writers {
		t.Errorf("Expected %d versions, got %d", writers, len(listed))
	}

	// The pointer names a complete record from one writer
	current, err := vs.GetCurrent(scope)
	if err != nil {
		t.Fatalf("Failed to get current: %v", err)
	}
	if !strings.HasPrefix(current.Content, "writer ") {
		t.Errorf("Unexpected current content %q", current.Content)
	}
}

func TestConcurrentScopes(t *testing.T) {
	vs := setupTestStore(t, Options{})

	var wg sync.WaitGroup
	for u := 0; u < 4; u++ {
		for th := 0; th < 4; th++ {
			wg.Add(1)
			go func(u, th int) {
				defer wg.Done()
				scope := Scope{UserID: fmt.Sprintf("u%d", u), ThreadID: fmt.Sprintf("t%d", th)}
				for i := 0; i < 5; i++ {
					if _, err := vs.AppendVersion(scope, fmt.Sprintf("%s #%d", scope, i)); err != nil {
						t.Errorf("Append in %s failed: %v", scope, err)
						return
					}
				}
			}(u, th)
		}
	}
	wg.Wait()

	for u := 0; u < 4; u++ {
		for th := 0; th < 4; th++ {
			scope := Scope{UserID: fmt.Sprintf("u%d", u), ThreadID: fmt.Sprintf("t%d", th)}
			current, err := vs.GetCurrent(scope)
			if err != nil {
				t.Fatalf("Failed to get current of %s: %v", scope, err)
			}
			if want := fmt.Sprintf("%s #4", scope); current.Content != want {
				t.Errorf("Expected %q, got %q", want, current.Content)
			}
		}
	}
}

func TestIDsSurviveReopen(t *testing.T) {
	root := t.TempDir()
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	vs, _ := Open(root, Options{NoSync: true})
	vs.AppendVersion(scope, "one")
	vs.AppendVersion(scope, "two")

	reopened, err := Open(root, Options{NoSync: true})
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	rec, err := reopened.AppendVersion(scope, "three")
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if rec.VersionID != "v3" {
		t.Errorf("Expected v3 after reopen, got %s", rec.VersionID)
	}
}

func TestSharedDirectoryCollision(t *testing.T) {
	root := t.TempDir()
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	// Two stores over one directory stand in for two processes
	a, _ := Open(root, Options{NoSync: true})
	b, _ := Open(root, Options{NoSync: true})

	a.AppendVersion(scope, "a1") // a caches seq 1
	b.AppendVersion(scope, "b1") // b scans, gets v2
	rec, err := a.AppendVersion(scope, "a2")
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if rec.VersionID != "v3" {
		t.Errorf("Expected v3 after collision, got %s", rec.VersionID)
	}

	got, err := b.GetVersion(scope, "v2")
	if err != nil || got.Content != "b1" {
		t.Errorf("Expected v2 to keep b1, got %v (%v)", got, err)
	}
}

func TestConsistencyFaultMissingRecord(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	vs.AppendVersion(scope, "one")
	if err := os.Remove(vs.recordPath(scope, 1)); err != nil {
		t.Fatal(err)
	}

	_, err := vs.GetCurrent(scope)
	if !errors.Is(err, ErrConsistencyFault) {
		t.Fatalf("Expected ErrConsistencyFault, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("Consistency fault must not look like a normal absence: %v", err)
	}
}

func TestConsistencyFaultCorruptRecord(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	vs.AppendVersion(scope, "some draft text")
	path := vs.recordPath(scope, 1)
	data, _ := os.ReadFile(path)

	// Flip a byte of the content
	idx := strings.Index(string(data), "draft")
	if idx < 0 {
		t.Fatal("content not found in record file")
	}
	data[idx] = 'D'
	os.WriteFile(path, data, 0o644)

	if _, err := vs.GetCurrent(scope); !errors.Is(err, ErrConsistencyFault) {
		t.Errorf("Expected ErrConsistencyFault, got %v", err)
	}
}

func TestConsistencyFaultCorruptPointer(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	vs.AppendVersion(scope, "one")
	os.WriteFile(vs.currentPath(scope), []byte("not cbor"), 0o644)

	if _, err := vs.GetCurrent(scope); !errors.Is(err, ErrConsistencyFault) {
		t.Errorf("Expected ErrConsistencyFault, got %v", err)
	}
}

func TestStorageUnavailable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}
	vs.AppendVersion(scope, "one")

	dir := filepath.Join(vs.Root(), "u1", "t1")
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o755)

	if _, err := vs.AppendVersion(scope, "two"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Expected ErrStorageUnavailable, got %v", err)
	}

	current, err := vs.GetCurrent(scope)
	if err != nil {
		t.Fatalf("Failed to get current: %v", err)
	}
	if current.VersionID != "v1" {
		t.Errorf("Expected pointer to stay at v1, got %s", current.VersionID)
	}
}

func TestListVersionsAfter(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}
	for i := 0; i < 7; i++ {
		vs.AppendVersion(scope, fmt.Sprintf("%d", i))
	}

	page, err := vs.ListVersionsAfter(scope, "", 3)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if !slices.Equal(page, []string{"v1", "v2", "v3"}) {
		t.Errorf("Expected [v1 v2 v3], got %v", page)
	}

	page, _ = vs.ListVersionsAfter(scope, "v3", 3)
	if !slices.Equal(page, []string{"v4", "v5", "v6"}) {
		t.Errorf("Expected [v4 v5 v6], got %v", page)
	}

	page, _ = vs.ListVersionsAfter(scope, "v6", 3)
	if !slices.Equal(page, []string{"v7"}) {
		t.Errorf("Expected [v7], got %v", page)
	}

	if _, err := vs.ListVersionsAfter(scope, "bogus", 3); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestVersionsIterator(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}
	total := listPageSize + 5
	for i := 0; i < total; i++ {
		vs.AppendVersion(scope, "x")
	}

	var got []string
	for id, err := range vs.Versions(scope) {
		if err != nil {
			t.Fatalf("Iteration failed: %v", err)
		}
		got = append(got, id)
	}
	if len(got) != total {
		t.Fatalf("Expected %d ids, got %d", total, len(got))
	}
	if got[0] != "v1" || got[total-1] != FormatID(uint64(total)) {
		t.Errorf("Unexpected bounds %s..%s", got[0], got[total-1])
	}

	// Early break
	count := 0
	for range vs.Versions(scope) {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Errorf("Expected to stop after 3, got %d", count)
	}
}

func TestIgnoresForeignFiles(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}
	vs.AppendVersion(scope, "one")

	dir := filepath.Join(vs.Root(), "u1", "t1")
	for _, name := range []string{".tmp-123", "v01.rec", "vx.rec", "v2.json", "notes.txt"} {
		os.WriteFile(filepath.Join(dir, name), []byte("junk"), 0o644)
	}

	ids, _ := vs.ListVersions(scope)
	if !slices.Equal(ids, []string{"v1"}) {
		t.Errorf("Expected [v1], got %v", ids)
	}
}

func TestZstdCompression(t *testing.T) {
	vs := setupTestStore(t, Options{Compression: CompressionZstd, CompressMinBytes: 64})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	long := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200)
	if _, err := vs.AppendVersion(scope, long); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if _, err := vs.AppendVersion(scope, "short"); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	info, _ := os.Stat(vs.recordPath(scope, 1))
	if info.Size() >= int64(len(long)) {
		t.Errorf("Expected compressed record smaller than %d bytes, got %d", len(long), info.Size())
	}

	rec, err := vs.GetVersion(scope, "v1")
	if err != nil {
		t.Fatalf("Failed to get v1: %v", err)
	}
	if rec.Content != long {
		t.Error("Compressed content did not round-trip")
	}

	rec, _ = vs.GetVersion(scope, "v2")
	if rec.Content != "short" {
		t.Errorf("Expected short, got %q", rec.Content)
	}
}

func TestCreatedAtUsesClock(t *testing.T) {
	fixed := time.Date(2025, 5, 1, 12, 30, 45, 123456789, time.UTC)
	vs := setupTestStore(t, Options{Now: func() time.Time { return fixed }})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	vs.AppendVersion(scope, "one")
	rec, err := vs.GetCurrent(scope)
	if err != nil {
		t.Fatalf("Failed to get current: %v", err)
	}
	if !rec.CreatedAt.Equal(fixed) {
		t.Errorf("Expected %v, got %v", fixed, rec.CreatedAt)
	}
	if len(rec.Digest) != 64 {
		t.Errorf("Expected 64-char hex digest, got %q", rec.Digest)
	}
}

// failSyncDir makes directory fsync fail on the calls failOn selects,
// counting from 1, and restores the real implementation afterwards.
func failSyncDir(t *testing.T, failOn func(call int) bool) {
	t.Helper()
	var mu sync.Mutex
	calls := 0
	syncDir = func(dir string) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if failOn(n) {
			return fmt.Errorf("fsync directory %s: %w", dir, errors.New("input/output error"))
		}
		return syncDirectory(dir)
	}
	t.Cleanup(func() { syncDir = syncDirectory })
}

func openDurableStore(t *testing.T) *Store {
	t.Helper()
	vs, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return vs
}

func TestFailedRecordSyncLeavesNoVersion(t *testing.T) {
	vs := openDurableStore(t)
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	if _, err := vs.AppendVersion(scope, "one"); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	failSyncDir(t, func(int) bool { return true })

	if _, err := vs.AppendVersion(scope, "two"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Expected ErrStorageUnavailable, got %v", err)
	}

	ids, err := vs.ListVersions(scope)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if !slices.Equal(ids, []string{"v1"}) {
		t.Errorf("Failed append is visible in history: %v", ids)
	}
	current, err := vs.GetCurrent(scope)
	if err != nil || current.VersionID != "v1" {
		t.Errorf("Expected current v1, got %v (%v)", current, err)
	}

	syncDir = syncDirectory
	rec, err := vs.AppendVersion(scope, "three")
	if err != nil {
		t.Fatalf("Failed to append after recovery: %v", err)
	}
	if rec.VersionID != "v2" {
		t.Errorf("Expected v2 after recovery, got %s", rec.VersionID)
	}
}

func TestPointerSyncFailureKeepsRecord(t *testing.T) {
	vs := openDurableStore(t)
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	if _, err := vs.AppendVersion(scope, "one"); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	// Each append syncs the directory twice: record link, then pointer rename
	failSyncDir(t, func(call int) bool { return call == 2 })

	rec, err := vs.AppendVersion(scope, "two")
	if err != nil {
		t.Fatalf("Append should succeed once the pointer is renamed: %v", err)
	}
	if rec.VersionID != "v2" {
		t.Errorf("Expected v2, got %s", rec.VersionID)
	}

	current, err := vs.GetCurrent(scope)
	if err != nil {
		t.Fatalf("Pointer names a missing record: %v", err)
	}
	if current.VersionID != "v2" || current.Content != "two" {
		t.Errorf("Expected {two v2}, got {%s %s}", current.Content, current.VersionID)
	}

	ids, _ := vs.ListVersions(scope)
	if !slices.Equal(ids, []string{"v1", "v2"}) {
		t.Errorf("Expected [v1 v2], got %v", ids)
	}

	failSyncDir(t, func(int) bool { return true })
	if err := vs.Revert(scope, "v1"); err != nil {
		t.Fatalf("Revert should succeed once the pointer is renamed: %v", err)
	}
	current, err = vs.GetCurrent(scope)
	if err != nil || current.VersionID != "v1" {
		t.Errorf("Expected current v1, got %v (%v)", current, err)
	}
}

func TestConcurrentAppendRevertAndRead(t *testing.T) {
	vs := setupTestStore(t, Options{})
	scope := Scope{UserID: "u1", ThreadID: "t1"}

	const appenders, appendsEach, reverters, revertsEach, readers = 4, 10, 2, 20, 4

	var mu sync.Mutex
	written := map[string]string{}
	var known []string

	var observed [readers][]*Record
	done := make(chan struct{})

	var readWG sync.WaitGroup
	for r := 0; r < readers; r++ {
		readWG.Add(1)
		go func(r int) {
			defer readWG.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				rec, err := vs.GetCurrent(scope)
				if errors.Is(err, ErrNotFound) {
					continue
				}
				if err != nil {
					t.Errorf("GetCurrent during writes: %v", err)
					return
				}
				observed[r] = append(observed[r], rec)
			}
		}(r)
	}

	var writeWG sync.WaitGroup
	for w := 0; w < appenders; w++ {
		writeWG.Add(1)
		go func(w int) {
			defer writeWG.Done()
			for i := 0; i < appendsEach; i++ {
				content := fmt.Sprintf("writer %d draft %d", w, i)
				rec, err := vs.AppendVersion(scope, content)
				if err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
				mu.Lock()
				written[rec.VersionID] = content
				known = append(known, rec.VersionID)
				mu.Unlock()
			}
		}(w)
	}
	for w := 0; w < reverters; w++ {
		writeWG.Add(1)
		go func(w int) {
			defer writeWG.Done()
			for i := 0; i < revertsEach; i++ {
				mu.Lock()
				if len(known) == 0 {
					mu.Unlock()
					continue
				}
				target := known[(i*7+w)%len(known)]
				mu.Unlock()
				if err := vs.Revert(scope, target); err != nil {
					t.Errorf("Revert to %s failed: %v", target, err)
				}
			}
		}(w)
	}

	writeWG.Wait()
	close(done)
	readWG.Wait()

	for _, recs := range observed {
		for _, rec := range recs {
			if want, ok := written[rec.VersionID]; !ok || want != rec.Content {
				t.Errorf("Read %s with content %q, written as %q", rec.VersionID, rec.Content, want)
			}
			if seq, _ := ParseID(rec.VersionID); seq != rec.Seq {
				t.Errorf("Record %s carries seq %d", rec.VersionID, rec.Seq)
			}
		}
	}

	ids, err := vs.ListVersions(scope)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(ids) != appenders*appendsEach {
		t.Errorf("Expected %d versions, got %d", appenders*appendsEach, len(ids))
	}
	current, err := vs.Current(scope)
	if err != nil {
		t.Fatalf("Failed to read pointer: %v", err)
	}
	if !slices.Contains(ids, current) {
		t.Errorf("Final pointer %s is not a listed version", current)
	}
}

func TestCompareIDsNumericOrder(t *testing.T) {
	ids := []string{"v10", "v2", "v1", "v9", "v100"}

	lexical := slices.Clone(ids)
	slices.Sort(lexical)
	if lexical[1] != "v10" {
		t.Fatalf("Expected plain string order to misplace v10, got %v", lexical)
	}

	slices.SortFunc(ids, CompareIDs)
	want := []string{"v1", "v2", "v9", "v10", "v100"}
	if !slices.Equal(ids, want) {
		t.Errorf("Expected %v, got %v", want, ids)
	}
}
