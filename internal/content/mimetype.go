package content

import (
	"bytes"
	"path/filepath"
	"strings"
)

// magicSignature pairs a leading byte sequence with its MIME type, per
// spec §4.6's detect_content_type magic-byte sniff.
var magicSignatures = []struct {
	prefix []byte
	mime   string
}{
	{[]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{[]byte("GIF87a"), "image/gif"},
	{[]byte("GIF89a"), "image/gif"},
	{[]byte("RIFF"), "image/webp"}, // followed by size+"WEBP"; checked specially below
}

var extensionMimeTypes = map[string]string{
	".html": "text/html", ".htm": "text/html",
	".js":   "application/javascript",
	".css":  "text/css",
	".json": "application/json",
	".txt":  "text/plain",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
}

// DetectContentType sniffs bytes' MIME type via magic bytes, falling
// back to filename extension, then a printable-ASCII heuristic for
// small buffers, else BINARY — per spec §4.6.
func DetectContentType(data []byte, filename string) string {
	for _, sig := range magicSignatures {
		if !bytes.HasPrefix(data, sig.prefix) {
			continue
		}
		if sig.mime == "image/webp" {
			if len(data) >= 12 && string(data[8:12]) == "WEBP" {
				return "image/webp"
			}
			continue
		}
		return sig.mime
	}

	if filename != "" {
		ext := strings.ToLower(filepath.Ext(filename))
		if mime, ok := extensionMimeTypes[ext]; ok {
			return mime
		}
	}

	if len(data) > 0 && len(data) <= 4096 && isPrintableASCII(data) {
		return "text/plain"
	}
	return "application/octet-stream"
}

func isPrintableASCII(data []byte) bool {
	for _, b := range data {
		if b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		if b < 0x20 || b > 0x7E {
			return false
		}
	}
	return true
}
