// ABOUTME: Export sinks for saving the current draft
// ABOUTME: DirSink writes <dir>/<user_id>/<name>.txt atomically

package draft

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nainya/drafter/pkg/version"
)

// ExportSuffix is appended to saved file names that lack it
const ExportSuffix = ".txt"

// Sink receives exported drafts
type Sink interface {
	// Export persists rec under filename and returns where it went
	Export(ctx context.Context, rec *version.Record, filename string) (string, error)
}

// NormalizeFilename validates a bare file name and appends ExportSuffix
func NormalizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: filename is required", version.ErrInvalidArgument)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%w: filename %q must be a bare file name", version.ErrInvalidArgument, name)
	}
	if !strings.HasSuffix(name, ExportSuffix) {
		name += ExportSuffix
	}
	if len(name) > version.MaxIDLength {
		return "", fmt.Errorf("%w: filename is %d bytes, maximum is %d", version.ErrInvalidArgument, len(name), version.MaxIDLength)
	}
	return name, nil
}

// DirSink writes exports below Dir, one subdirectory per user
type DirSink struct {
	Dir    string
	NoSync bool
}

// Export writes the record's content to <Dir>/<user_id>/<filename>
func (d *DirSink) Export(ctx context.Context, rec *version.Record, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := NormalizeFilename(filename)
	if err != nil {
		return "", err
	}

	path := filepath.Join(d.Dir, rec.UserID, name)
	if err := version.WriteFileAtomic(path, []byte(rec.Content), d.NoSync); err != nil {
		return "", fmt.Errorf("exporting %s: %w: %w", name, version.ErrStorageUnavailable, err)
	}
	return path, nil
}
