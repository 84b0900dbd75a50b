package integrity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.log")
	content := []byte(`{"sequence_number":1,"timestamp":1755561600.25,"operation":{"type":"put"}}` + "\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	want := sha256.Sum256(content)

	got, err := FileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestFileChecksum_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.log")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	want := sha256.Sum256(nil)

	got, err := FileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestFileChecksum_LargerThanChunk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "large.log")
	// Spans several read chunks, with a tail that is not chunk-aligned.
	content := bytes.Repeat([]byte("abcdefgh"), 3000)
	require.NoError(t, os.WriteFile(path, content, 0644))

	want := sha256.Sum256(content)

	got, err := FileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestFileChecksum_MissingFile(t *testing.T) {
	_, err := FileChecksum(filepath.Join(t.TempDir(), "does_not_exist.log"))
	assert.Error(t, err)
}

func TestReaderChecksum_MatchesFileChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.log")
	content := bytes.Repeat([]byte("wal record data "), 512)
	require.NoError(t, os.WriteFile(path, content, 0644))

	fromFile, err := FileChecksum(path)
	require.NoError(t, err)

	fromReader, err := ReaderChecksum(bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, fromFile, fromReader)
}
