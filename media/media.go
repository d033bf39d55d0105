// Package media fetches task results and converts them between bytes and
// local artifacts.
package media

import (
	"encoding/hex"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/GoCodeAlone/kiejob/failure"
	"golang.org/x/crypto/sha3"
)

// Artifact is one materialized result.
type Artifact struct {
	URL string
	// Format is the decoded image format or the file extension without dot.
	Format string
	Size   int
	// Digest is the hex SHA3-256 of the downloaded bytes.
	Digest string
	// Image is set by ImageDecoder.
	Image image.Image
	// Path is set when the bytes were written to disk.
	Path string
	// Bonus marks every artifact after the first locator.
	Bonus bool
}

// Decoder turns downloaded bytes into an Artifact. Failures wrap
// failure.ErrDecode and are fatal.
type Decoder interface {
	Decode(data []byte) (Artifact, error)
}

// Encoder turns a domain object into upload-ready bytes and a content type.
type Encoder interface {
	Encode(v any) ([]byte, string, error)
}

// Digest returns the hex SHA3-256 of data.
func Digest(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func decodeError(format string, args ...any) error {
	return &failure.Error{
		Kind:    failure.Fatal,
		Op:      "decode",
		Message: fmt.Sprintf(format, args...),
		Err:     failure.ErrDecode,
	}
}

// writeArtifact stores data under dir as <digest prefix>.<ext>.
func writeArtifact(dir, digest, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, digest[:16]+"."+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	return path, nil
}
