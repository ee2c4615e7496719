package mediatypes

import (
	"testing"
)

func TestGetFileType(t *testing.T) {
	tests := []struct {
		name string
		path string
		want FileType
	}{
		{
			name: "JPEG image",
			path: "/src/logo.jpg",
			want: FileTypeImage,
		},
		{
			name: "upper case PNG",
			path: "TITLE.PNG",
			want: FileTypeImage,
		},
		{
			name: "MP4 video",
			path: "clip.mp4",
			want: FileTypeVideo,
		},
		{
			name: "MKV alias",
			path: "clip.m4v",
			want: FileTypeVideo,
		},
		{
			name: "M4A audio",
			path: "music.m4a",
			want: FileTypeAudio,
		},
		{
			name: "Opus alias",
			path: "voice.opus",
			want: FileTypeAudio,
		},
		{
			name: "Unknown extension",
			path: "notes.xyz",
			want: FileTypeOther,
		},
		{
			name: "No extension",
			path: "README",
			want: FileTypeOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetFileType(tt.path)
			if got != tt.want {
				t.Errorf("GetFileType(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestForExtension(t *testing.T) {
	tests := []struct {
		ext        string
		wantFormat string
		wantOK     bool
	}{
		{".mp4", "mp4", true},
		{"mkv", "matroska", true},
		{".MKV", "matroska", true},
		{".mka", "matroska", true},
		{".ts", "mpegts", true},
		{".m4a", "ipod", true},
		{".xyz", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			c, ok := ForExtension(tt.ext)
			if ok != tt.wantOK {
				t.Fatalf("ForExtension(%q) ok = %v, want %v", tt.ext, ok, tt.wantOK)
			}
			if c.Format != tt.wantFormat {
				t.Errorf("ForExtension(%q) = %q, want %q", tt.ext, c.Format, tt.wantFormat)
			}
		})
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"mp4", ".mp4"},
		{"matroska", ".mkv"},
		{"Matroska", ".mkv"},
		{"mpegts", ".ts"},
		{"ipod", ".m4a"},
		{"nut", ".nut"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			if got := Extension(tt.format); got != tt.want {
				t.Errorf("Extension(%q) = %q, want %q", tt.format, got, tt.want)
			}
		})
	}
}

func TestAliasesKeepCanonicalFormat(t *testing.T) {
	c, ok := ForFormat("mp4")
	if !ok {
		t.Fatal("Expected mp4 to be known")
	}
	if c.Extension != ".mp4" {
		t.Errorf("Expected canonical .mp4, got %s", c.Extension)
	}
	alias, _ := ForExtension(".m4v")
	if alias.Format != "mp4" || alias.Extension != ".m4v" {
		t.Errorf("Expected mp4 with .m4v extension, got %+v", alias)
	}
}

func TestAudioOnly(t *testing.T) {
	for _, c := range Containers {
		if c.AudioOnly && GetFileType("x"+c.Extension) != FileTypeAudio {
			t.Errorf("Expected %s to classify as audio", c.Extension)
		}
	}
	if c, _ := ForPath("out.mp4"); c.AudioOnly {
		t.Error("Expected mp4 to carry video")
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"out.mp4", "video/mp4"},
		{"out.mkv", "video/x-matroska"},
		{"out.webm", "video/webm"},
		{"out.mp3", "audio/mpeg"},
		{"out.bin", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := GetMimeType(tt.path); got != tt.want {
				t.Errorf("GetMimeType(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
