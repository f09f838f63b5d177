package archive

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// PreviewKind is the classification of a preview payload.
type PreviewKind string

const (
	PreviewText   PreviewKind = "text"
	PreviewBinary PreviewKind = "binary"
)

// PreviewLimits bounds how much of an entry a preview reads and returns.
type PreviewLimits struct {
	MaxRead   int64 // bytes read from the entry
	MaxText   int   // bytes of text returned before truncation
	MaxBinary int   // bytes of binary payload returned
}

// DefaultPreviewLimits returns the standard caps: 10 MiB read, 500 KiB text
// and 64 KiB binary.
func DefaultPreviewLimits() PreviewLimits {
	return PreviewLimits{
		MaxRead:   10 << 20,
		MaxText:   500 << 10,
		MaxBinary: 64 << 10,
	}
}

// PreviewResult is a bounded view of one archive entry.
type PreviewResult struct {
	Kind        PreviewKind `json:"kind"`
	MIME        string      `json:"mime"`
	Text        *string     `json:"text,omitempty"`
	Data        []byte      `json:"data_base64,omitempty"`
	Size        int64       `json:"size"`
	SniffedMIME string      `json:"sniffed_mime,omitempty"`
	Truncated   bool        `json:"truncated"`
}

var mimeTypes = map[string]string{
	"jpg":      "image/jpeg",
	"jpeg":     "image/jpeg",
	"png":      "image/png",
	"gif":      "image/gif",
	"webp":     "image/webp",
	"svg":      "image/svg+xml",
	"bmp":      "image/bmp",
	"ico":      "image/x-icon",
	"json":     "application/json",
	"xml":      "application/xml",
	"html":     "text/html",
	"htm":      "text/html",
	"css":      "text/css",
	"js":       "application/javascript",
	"ts":       "application/typescript",
	"md":       "text/markdown",
	"markdown": "text/markdown",
	"py":       "text/x-python",
	"rs":       "text/x-rust",
	"sh":       "text/x-shellscript",
	"bash":     "text/x-shellscript",
	"txt":      "text/plain",
}

// MIMEFromName maps an entry name to a MIME type by its extension.
func MIMEFromName(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if m, ok := mimeTypes[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// Preview reads a bounded prefix of a ZIP entry and classifies it. Images are
// always binary. Other content is text when it is valid UTF-8 and binary
// otherwise. Size always reports the entry's declared size.
func Preview(archivePath, entryPath string, limits PreviewLimits) (*PreviewResult, error) {
	data, size, err := ReadEntry(archivePath, entryPath, limits.MaxRead)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		MIME: MIMEFromName(entryPath),
		Size: size,
	}
	if len(data) > 0 {
		result.SniffedMIME = mimetype.Detect(data).String()
	}
	readCapped := int64(len(data)) < size

	if strings.HasPrefix(result.MIME, "image/") {
		result.Kind = PreviewBinary
		result.Data = data
		result.Truncated = readCapped
		return result, nil
	}

	text := data
	if readCapped {
		text = trimPartialRune(text)
	}
	if utf8.Valid(text) {
		s, cut := truncateText(string(text), limits.MaxText, size)
		result.Kind = PreviewText
		result.Text = &s
		result.Truncated = cut || readCapped
		return result, nil
	}

	result.Kind = PreviewBinary
	if len(data) > limits.MaxBinary {
		data = data[:limits.MaxBinary]
		result.Truncated = true
	}
	result.Data = data
	result.Truncated = result.Truncated || readCapped
	return result, nil
}

// truncateText cuts s at the last rune boundary at or before limit bytes and
// appends a notice naming the full size.
func truncateText(s string, limit int, size int64) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s…\n\n[Preview truncated. Full file is %d bytes]", s[:cut], size), true
}

// trimPartialRune drops an incomplete UTF-8 sequence left at the end of b by a
// read cap.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}
