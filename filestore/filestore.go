// Package filestore defines the Reader/Writer interfaces the reliability
// core depends on for file I/O, plus a real os.File-backed implementation.
// Core packages never import os directly, so they can be driven in tests
// by the in-memory fakes in memfile.go.
package filestore

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Reader reads n bytes at offset from a source file. A read at or past
// EOF returns a shorter (possibly empty) slice and a nil error — EOF is
// not a failure here, it is how the sender learns it has read the whole
// file.
type Reader interface {
	ReadAt(offset int64, n int) ([]byte, error)
}

// Writer appends bytes to a destination file, in order, flushing them to
// stable storage before returning.
type Writer interface {
	Append(b []byte) error
}

// File is an os.File-backed Reader and Writer.
type File struct {
	f *os.File
}

// OpenReader opens path for reading.
func OpenReader(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open input file %s", path)
	}
	return &File{f: f}, nil
}

// CreateWriter creates (truncating if present) path for writing.
func CreateWriter(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create output file %s", path)
	}
	return &File{f: f}, nil
}

// ReadAt reads up to n bytes starting at offset, returning fewer (or zero)
// bytes at EOF rather than an error.
func (fl *File) ReadAt(offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := fl.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "read input file at offset %d", offset)
	}
	return buf[:read], nil
}

// Append writes b to the end of the file and flushes it to stable
// storage, mirroring the source implementation's write-then-flush per
// segment.
func (fl *File) Append(b []byte) error {
	if _, err := fl.f.Write(b); err != nil {
		return errors.Wrap(err, "append to output file")
	}
	if err := fl.f.Sync(); err != nil {
		return errors.Wrap(err, "flush output file")
	}
	return nil
}

// Close releases the underlying os.File.
func (fl *File) Close() error {
	return fl.f.Close()
}
