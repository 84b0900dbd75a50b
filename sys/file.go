// Package sys abstracts file access behind swappable handlers so that tests
// can inject failing files without touching the real filesystem layer.
package sys

import (
	"io"
	"os"
)

// FileHandle is the subset of *os.File the log engine relies on.
type FileHandle interface {
	io.ReadWriteCloser
	io.Seeker

	Stat() (os.FileInfo, error)
	Sync() error
	Name() string
}

type CreateHandler func(name string) (FileHandle, error)
type OpenHandler func(name string) (FileHandle, error)
type OpenFileHandler func(name string, flag int, perm os.FileMode) (FileHandle, error)
type RenameHandler func(oldpath, newpath string) error
type RemoveHandler func(name string) error

// The package-level handlers default to the real filesystem. Tests may swap
// them to simulate I/O failures; swaps are not safe for concurrent use with
// live file traffic.
var (
	Create CreateHandler = func(name string) (FileHandle, error) {
		return OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	}

	Open OpenHandler = func(name string) (FileHandle, error) {
		return OpenFile(name, os.O_RDONLY, 0)
	}

	OpenFile OpenFileHandler = func(name string, flag int, perm os.FileMode) (FileHandle, error) {
		return realOpenFile(name, flag, perm)
	}

	Rename RenameHandler = os.Rename

	Remove RemoveHandler = os.Remove
)
