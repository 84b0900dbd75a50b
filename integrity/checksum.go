// Package integrity provides the streaming file checksum shared by
// checkpoint creation and recovery validation.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/nexuslog/sys"
)

// checksumChunkSize is the fixed read size used when streaming a file
// through the hash.
const checksumChunkSize = 4 * 1024

// FileChecksum streams the file at path through SHA-256 in fixed 4 KiB
// chunks and returns the hex digest. It has no side effects.
func FileChecksum(path string) (string, error) {
	file, err := sys.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for checksum %s: %w", path, err)
	}
	defer file.Close()

	sum, err := ReaderChecksum(file)
	if err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	return sum, nil
}

// ReaderChecksum computes the hex SHA-256 digest of everything readable
// from r.
func ReaderChecksum(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, checksumChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
