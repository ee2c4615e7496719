package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the kind of media a file holds.
type FileType string

const (
	// FileTypeImage represents a still image source.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video file, possibly carrying audio.
	FileTypeVideo FileType = "video"
	// FileTypeAudio represents an audio-only file.
	FileTypeAudio FileType = "audio"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// Container describes an output container: the muxer name, its canonical
// file extension and MIME type.
type Container struct {
	Format    string
	Extension string
	MimeType  string
	// AudioOnly containers cannot carry a video stream.
	AudioOnly bool
}

// Containers lists the supported output containers. The first entry for a
// format supplies its canonical extension.
var Containers = []Container{
	{Format: "mp4", Extension: ".mp4", MimeType: "video/mp4"},
	{Format: "matroska", Extension: ".mkv", MimeType: "video/x-matroska"},
	{Format: "mov", Extension: ".mov", MimeType: "video/quicktime"},
	{Format: "webm", Extension: ".webm", MimeType: "video/webm"},
	{Format: "mpegts", Extension: ".ts", MimeType: "video/mp2t"},
	{Format: "avi", Extension: ".avi", MimeType: "video/x-msvideo"},
	{Format: "flv", Extension: ".flv", MimeType: "video/x-flv"},
	{Format: "mpeg", Extension: ".mpg", MimeType: "video/mpeg"},
	{Format: "3gp", Extension: ".3gp", MimeType: "video/3gpp"},
	{Format: "ipod", Extension: ".m4a", MimeType: "audio/mp4", AudioOnly: true},
	{Format: "mp3", Extension: ".mp3", MimeType: "audio/mpeg", AudioOnly: true},
	{Format: "ogg", Extension: ".ogg", MimeType: "audio/ogg", AudioOnly: true},
	{Format: "wav", Extension: ".wav", MimeType: "audio/wav", AudioOnly: true},
	{Format: "adts", Extension: ".aac", MimeType: "audio/aac", AudioOnly: true},
	{Format: "flac", Extension: ".flac", MimeType: "audio/flac", AudioOnly: true},
}

// aliases maps additional extensions to a container format.
var aliases = map[string]string{
	".m4v":  "mp4",
	".mka":  "matroska",
	".mpeg": "mpeg",
	".opus": "ogg",
	".oga":  "ogg",
}

// ImageExtensions maps file extensions to whether they are supported still
// image sources.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

var (
	byFormat    = make(map[string]Container)
	byExtension = make(map[string]Container)
)

func init() {
	for _, c := range Containers {
		if _, ok := byFormat[c.Format]; !ok {
			byFormat[c.Format] = c
		}
		byExtension[c.Extension] = c
	}
	for ext, format := range aliases {
		c := byFormat[format]
		c.Extension = ext
		byExtension[ext] = c
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ForExtension returns the container for a file extension. The leading dot
// is optional and case is ignored.
func ForExtension(ext string) (Container, bool) {
	c, ok := byExtension[normalizeExt(ext)]
	return c, ok
}

// ForPath returns the container implied by path's extension.
func ForPath(path string) (Container, bool) {
	return ForExtension(filepath.Ext(path))
}

// ForFormat returns the container for a muxer name.
func ForFormat(format string) (Container, bool) {
	c, ok := byFormat[strings.ToLower(format)]
	return c, ok
}

// Extension returns the canonical extension for format, or "."+format when
// the format is not in the table.
func Extension(format string) string {
	if c, ok := ForFormat(format); ok {
		return c.Extension
	}
	return "." + strings.ToLower(format)
}

// GetFileType classifies a source file by its extension.
func GetFileType(path string) FileType {
	ext := normalizeExt(filepath.Ext(path))
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	if c, ok := byExtension[ext]; ok {
		if c.AudioOnly {
			return FileTypeAudio
		}
		return FileTypeVideo
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type of an output path, or
// "application/octet-stream" when its extension is not recognized.
func GetMimeType(path string) string {
	if c, ok := ForPath(path); ok {
		return c.MimeType
	}
	return "application/octet-stream"
}
