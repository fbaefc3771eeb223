// ABOUTME: On-disk encoding for version records and current pointers
// ABOUTME: Deterministic CBOR, optional zstd content, BLAKE3 content digest

package version

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// Compression selects how record content is stored
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ParseCompression accepts "", "none" and "zstd"
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	}
	return "", fmt.Errorf("%w: unknown compression %q", ErrInvalidArgument, s)
}

// diskRecord is the CBOR layout of a v<seq>.rec file
type diskRecord struct {
	VersionID string      `cbor:"version_id"`
	Seq       uint64      `cbor:"seq"`
	UserID    string      `cbor:"user_id"`
	ThreadID  string      `cbor:"thread_id"`
	CreatedAt time.Time   `cbor:"created_at"`
	Encoding  Compression `cbor:"encoding"`
	Size      int         `cbor:"size"`
	Content   []byte      `cbor:"content"`
	Digest    []byte      `cbor:"digest"`
}

// diskPointer is the CBOR layout of the CURRENT file
type diskPointer struct {
	VersionID string    `cbor:"version_id"`
	Seq       uint64    `cbor:"seq"`
	UpdatedAt time.Time `cbor:"updated_at"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// EncodeAll and DecodeAll are safe for concurrent use
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("version: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("version: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("version: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("version: zstd decoder initialization failed: " + err.Error())
	}
}

func contentDigest(content []byte) []byte {
	sum := blake3.Sum256(content)
	return sum[:]
}

// encodeRecord serializes rec. Content is compressed with zstd when requested,
// at least minBytes long, and the compressed form is actually smaller.
func encodeRecord(rec *Record, compression Compression, minBytes int) ([]byte, error) {
	plain := []byte(rec.Content)
	disk := diskRecord{
		VersionID: rec.VersionID,
		Seq:       rec.Seq,
		UserID:    rec.UserID,
		ThreadID:  rec.ThreadID,
		CreatedAt: rec.CreatedAt,
		Encoding:  CompressionNone,
		Size:      len(plain),
		Content:   plain,
		Digest:    contentDigest(plain),
	}

	if compression == CompressionZstd && len(plain) > 0 && len(plain) >= minBytes {
		compressed := zstdEncoder.EncodeAll(plain, nil)
		if len(compressed) < len(plain) {
			disk.Encoding = CompressionZstd
			disk.Content = compressed
		}
	}

	data, err := encMode.Marshal(&disk)
	if err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", rec.VersionID, err)
	}
	rec.Digest = hex.EncodeToString(disk.Digest)
	return data, nil
}

// decodeRecord parses and verifies a record file. Any failure here means the
// file on disk is not a record this store wrote.
func decodeRecord(data []byte) (*Record, error) {
	var disk diskRecord
	if err := decMode.Unmarshal(data, &disk); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}

	plain := disk.Content
	switch disk.Encoding {
	case CompressionNone, "":
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(disk.Content, make([]byte, 0, disk.Size))
		if err != nil {
			return nil, fmt.Errorf("decompressing record %s: %w", disk.VersionID, err)
		}
		plain = out
	default:
		return nil, fmt.Errorf("record %s: unknown encoding %q", disk.VersionID, disk.Encoding)
	}

	if len(plain) != disk.Size {
		return nil, fmt.Errorf("record %s: content is %d bytes, header says %d", disk.VersionID, len(plain), disk.Size)
	}
	if !bytes.Equal(contentDigest(plain), disk.Digest) {
		return nil, fmt.Errorf("record %s: content digest mismatch", disk.VersionID)
	}

	return &Record{
		Content:   string(plain),
		VersionID: disk.VersionID,
		Seq:       disk.Seq,
		CreatedAt: disk.CreatedAt,
		UserID:    disk.UserID,
		ThreadID:  disk.ThreadID,
		Digest:    hex.EncodeToString(disk.Digest),
	}, nil
}

func encodePointer(p diskPointer) ([]byte, error) {
	data, err := encMode.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("encoding pointer: %w", err)
	}
	return data, nil
}

func decodePointer(data []byte) (diskPointer, error) {
	var p diskPointer
	if err := decMode.Unmarshal(data, &p); err != nil {
		return diskPointer{}, fmt.Errorf("decoding pointer: %w", err)
	}
	if _, err := ParseID(p.VersionID); err != nil {
		return diskPointer{}, fmt.Errorf("decoding pointer: malformed version id %q", p.VersionID)
	}
	return p, nil
}
