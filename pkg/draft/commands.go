// ABOUTME: Typed draft commands and their results
// ABOUTME: The closed set of actions an agent may take on a draft

package draft

import (
	"fmt"
	"strings"

	"github.com/nainya/drafter/pkg/version"
)

// Kind names a command
type Kind string

const (
	KindUpdate   Kind = "update"
	KindSave     Kind = "save"
	KindGetDraft Kind = "get_draft"
	KindRevert   Kind = "revert"
	KindHistory  Kind = "history"
)

// Command is one of Update, Save, GetDraft, Revert or History
type Command interface {
	Kind() Kind
	Validate() error
	isCommand()
}

// Update replaces the draft with Content as a new version
type Update struct {
	Content string
}

// Save exports the current draft to Filename
type Save struct {
	Filename string
}

// GetDraft returns the current draft
type GetDraft struct{}

// Revert moves the current pointer to VersionID
type Revert struct {
	VersionID string
}

// History lists every version id
type History struct{}

func (Update) Kind() Kind   { return KindUpdate }
func (Save) Kind() Kind     { return KindSave }
func (GetDraft) Kind() Kind { return KindGetDraft }
func (Revert) Kind() Kind   { return KindRevert }
func (History) Kind() Kind  { return KindHistory }

func (Update) isCommand()   {}
func (Save) isCommand()     {}
func (GetDraft) isCommand() {}
func (Revert) isCommand()   {}
func (History) isCommand()  {}

// Validate accepts any content, including empty
func (Update) Validate() error { return nil }

// Validate requires a bare file name
func (c Save) Validate() error {
	_, err := NormalizeFilename(c.Filename)
	return err
}

func (GetDraft) Validate() error { return nil }

// Validate requires a non-empty id; unknown ids are reported by the store
func (c Revert) Validate() error {
	if strings.TrimSpace(c.VersionID) == "" {
		return fmt.Errorf("%w: version_id is required", version.ErrInvalidArgument)
	}
	return nil
}

func (History) Validate() error { return nil }

// ParseCommand builds a typed command from a tool name and loosely typed
// arguments, as delivered by an agent's tool call.
func ParseCommand(name string, args map[string]any) (Command, error) {
	str := func(key string) (string, error) {
		v, ok := args[key]
		if !ok {
			return "", fmt.Errorf("%w: %s requires %q", version.ErrInvalidArgument, name, key)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: %q must be a string, got %T", version.ErrInvalidArgument, key, v)
		}
		return s, nil
	}

	var cmd Command
	switch Kind(name) {
	case KindUpdate:
		content, err := str("content")
		if err != nil {
			return nil, err
		}
		cmd = Update{Content: content}
	case KindSave:
		filename, err := str("filename")
		if err != nil {
			return nil, err
		}
		cmd = Save{Filename: filename}
	case KindGetDraft:
		cmd = GetDraft{}
	case KindRevert:
		id, err := str("version_id")
		if err != nil {
			return nil, err
		}
		cmd = Revert{VersionID: id}
	case KindHistory:
		cmd = History{}
	default:
		return nil, fmt.Errorf("%w: unknown command %q", version.ErrInvalidArgument, name)
	}

	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Status is the caller-facing outcome of a command
type Status string

const (
	StatusDone    Status = "done"    // The draft was changed or exported
	StatusWaiting Status = "waiting" // Read-only; the session awaits another instruction
	StatusError   Status = "error"
)

// Result is returned for every command
type Result struct {
	Output   string
	Status   Status
	UserID   string
	ThreadID string
	Version  string
	Content  string
	Versions []string
	Filename string
	NoDraft  bool // The scope has no current draft
}
