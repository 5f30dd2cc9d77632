package io

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CreateFS defines a file system interface that supports creating files and directories.
// It extends basic file system operations with write capabilities for marshaling
// drive archives.
type CreateFS interface {
	// Sub returns a filesystem for a subdirectory.
	Sub(name string) (sub CreateFS, err error)
	// Create creates a new file for writing.
	Create(name string) (file io.WriteCloser, err error)
	// Mkdir creates a new directory with the specified permissions.
	Mkdir(name string, filemode fs.FileMode) (err error)
}

// DirFS is a CreateFS rooted at a host directory.
type DirFS string

var _ CreateFS = DirFS("")

// Sub returns the CreateFS of an existing subdirectory.
func (dir DirFS) Sub(name string) (sub CreateFS, err error) {
	path := filepath.Join(string(dir), name)
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if !info.IsDir() {
		err = &fs.PathError{Op: "sub", Path: path, Err: ErrDriveNotDirectory}
		return
	}

	sub = DirFS(path)
	return
}

// Create creates or truncates a file.
func (dir DirFS) Create(name string) (file io.WriteCloser, err error) {
	return os.Create(filepath.Join(string(dir), name))
}

// Mkdir creates a directory.
func (dir DirFS) Mkdir(name string, filemode fs.FileMode) (err error) {
	return os.Mkdir(filepath.Join(string(dir), name), filemode)
}
