package sys

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.log")

	f, err := Create(path)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	assert.Equal(t, path, f.Name())
	require.NoError(t, f.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	info, err := r.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(6), info.Size())
}

func TestOpenFile_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.log")

	f, err := OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	require.Error(t, err)
	assert.True(t, os.IsExist(err))
}

func TestRenameAndRemove(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "a.tmp")
	newPath := filepath.Join(dir, "a.log")

	f, err := Create(oldPath)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, Rename(oldPath, newPath))
	assert.NoFileExists(t, oldPath)
	assert.FileExists(t, newPath)

	require.NoError(t, Remove(newPath))
	assert.NoFileExists(t, newPath)
}

func TestSwappableHandlers(t *testing.T) {
	original := Open
	defer func() { Open = original }()

	injected := errors.New("injected open failure")
	Open = func(name string) (FileHandle, error) {
		return nil, injected
	}

	_, err := Open("anything")
	assert.ErrorIs(t, err, injected)
}
