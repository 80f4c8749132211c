package models

import "time"

// Video describes a staged upload kept for the lifetime of a session.
type Video struct {
	Filename     string // storage key of the staged copy
	OriginalName string // filename as uploaded
	ContentType  string
	Size         int64
	UploadTime   time.Time
}

func NewVideo(originalName, filename, contentType string, size int64) Video {
	return Video{
		Filename:     filename,
		OriginalName: originalName,
		ContentType:  contentType,
		Size:         size,
		UploadTime:   time.Now(),
	}
}
