package media

import (
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

const sniffBytes = 1024

// Sniffed types some renderers refuse; the override is what they accept.
var contentTypeOverrides = map[string]string{
	"video/x-matroska": "video/webm",
}

// detectContentType sniffs the file's leading bytes, applies the renderer
// override table, and falls back to the extension when sniffing fails.
func detectContentType(filePath string) string {
	f, err := os.Open(filePath)
	if err != nil {
		return fallbackContentType(filepath.Ext(filePath))
	}
	defer f.Close()

	buf := make([]byte, sniffBytes)
	n, err := f.Read(buf)
	if n == 0 && err != nil && err != io.EOF {
		return fallbackContentType(filepath.Ext(filePath))
	}

	detected := mimetype.Detect(buf[:n]).String()
	if base, _, ok := splitMediaType(detected); ok {
		detected = base
	}
	if override, ok := contentTypeOverrides[detected]; ok {
		return override
	}
	if detected == "" || detected == "application/octet-stream" {
		return fallbackContentType(filepath.Ext(filePath))
	}
	return detected
}

func splitMediaType(value string) (string, string, bool) {
	for i := 0; i < len(value); i++ {
		if value[i] == ';' {
			return value[:i], value[i+1:], true
		}
	}
	return value, "", true
}

func fallbackContentType(ext string) string {
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/webm"
	case ".webm":
		return "video/webm"
	case ".avi":
		return "video/x-msvideo"
	case ".mov":
		return "video/quicktime"
	case ".m4v":
		return "video/x-m4v"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".srt", ".vtt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
