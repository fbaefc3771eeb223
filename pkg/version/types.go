// ABOUTME: Draft version data model
// ABOUTME: Scopes, immutable version records and version id ordering

package version

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxIDLength bounds user and thread identifiers; both become directory names.
const MaxIDLength = 255

// Scope identifies one user's one conversation thread
type Scope struct {
	UserID   string
	ThreadID string
}

// String returns "user/thread"
func (s Scope) String() string {
	return s.UserID + "/" + s.ThreadID
}

// Validate rejects identifiers that are empty or cannot be used as a single
// path component.
func (s Scope) Validate() error {
	if err := validateID("user_id", s.UserID); err != nil {
		return err
	}
	return validateID("thread_id", s.ThreadID)
}

func validateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, field)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %s is %d bytes, maximum is %d", ErrInvalidArgument, field, len(id), MaxIDLength)
	}
	if id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %s %q must not start with '.'", ErrInvalidArgument, field, id)
	}
	if strings.ContainsAny(id, "/\\\x00") {
		return fmt.Errorf("%w: %s %q contains a path separator or NUL", ErrInvalidArgument, field, id)
	}
	return nil
}

// Record is one immutable snapshot of a scope's draft
type Record struct {
	Content   string    // Full document text at this version
	VersionID string    // "v<seq>"
	Seq       uint64    // Per-scope sequence number, starts at 1
	CreatedAt time.Time // Creation time
	UserID    string
	ThreadID  string
	Digest    string // Hex BLAKE3 digest of Content
}

// FormatID renders a sequence number as a version id. Ids are not zero
// padded, so "v10" sorts before "v2" as a plain string; order them with
// CompareIDs.
func FormatID(seq uint64) string {
	return "v" + strconv.FormatUint(seq, 10)
}

// ParseID returns the sequence number of a version id such as "v12".
func ParseID(id string) (uint64, error) {
	digits, ok := strings.CutPrefix(id, "v")
	if !ok || digits == "" || (len(digits) > 1 && digits[0] == '0') {
		return 0, fmt.Errorf("%w: malformed version id %q", ErrInvalidArgument, id)
	}
	seq, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || seq == 0 {
		return 0, fmt.Errorf("%w: malformed version id %q", ErrInvalidArgument, id)
	}
	return seq, nil
}

// CompareIDs orders two version ids by sequence number and is the only
// valid ordering of ids. Malformed ids sort before well-formed ones and
// compare lexically among themselves.
func CompareIDs(a, b string) int {
	sa, errA := ParseID(a)
	sb, errB := ParseID(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
