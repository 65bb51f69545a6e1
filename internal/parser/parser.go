// Package parser extracts plain text from documents on disk.
package parser

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"docrag/internal/domain"
)

// Kinds of parsed documents.
const (
	KindPDF  = "pdf"
	KindDOCX = "docx"
	KindText = "text"
	KindCode = "code"
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true, ".log": true,
}

var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".cpp": true, ".c": true, ".h": true, ".hpp": true,
	".go": true, ".rs": true, ".rb": true, ".php": true, ".sql": true,
	".sh": true, ".bash": true, ".yaml": true, ".yml": true, ".json": true,
	".xml": true, ".html": true, ".css": true, ".scss": true, ".less": true,
}

// KindOf returns the document kind for path, or "" when the extension is
// not supported.
func KindOf(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return KindPDF
	case ext == ".docx":
		return KindDOCX
	case textExtensions[ext]:
		return KindText
	case codeExtensions[ext]:
		return KindCode
	}
	return ""
}

// Allowed reports whether a file name has a supported extension.
func Allowed(name string) bool { return KindOf(name) != "" }

// Files is the default parser dispatching on file extension.
type Files struct{}

// New returns the extension-dispatching parser.
func New() *Files { return &Files{} }

// Parse reads path and returns its text and kind. Unknown extensions fail
// with KindUnsupportedFormat; read or decode failures with KindUpstream.
func (Files) Parse(path string) (string, string, error) {
	const op = "parser.parse"
	kind := KindOf(path)
	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		text, err = parsePDF(path)
	case KindDOCX:
		text, err = parseDOCX(path)
	case KindText, KindCode:
		text, err = parseText(path)
	default:
		return "", "", domain.E(domain.KindUnsupportedFormat, op, "unsupported file format: %s", filepath.Base(path))
	}
	if err != nil {
		return "", kind, domain.Wrap(domain.KindUpstream, op, err)
	}
	return text, kind, nil
}

func parseText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return DecodeText(data), nil
}

// DecodeText interprets data as UTF-8, then Windows-1251, then Latin-1.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	if out, err := charmap.Windows1251.NewDecoder().Bytes(data); err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
		return string(out)
	}
	out, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return string(out)
}
