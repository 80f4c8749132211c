package storage

import "io"

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage keeps uploads staged for the lifetime of a session. Keys
// returned by SaveFile are opaque filenames, never caller-chosen paths.
type Storage interface {
	SaveFile(file io.Reader, info FileInfo) (string, error)
	OpenFile(name string) (io.ReadSeekCloser, error)
	DeleteFile(name string) error
	FilePath(name string) (string, error)
}
