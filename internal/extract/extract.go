// Package extract pulls plain text out of uploaded documents.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// textExtensions are read directly as UTF-8.
var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".log":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".xml":  true,
	".html": true,
}

// ErrUnsupportedFormat is returned for file types the hub cannot read.
// Its message names the supported set so it can be shown to the user.
var ErrUnsupportedFormat = fmt.Errorf("unsupported document format: supported are %s", supportedList())

func supportedList() string {
	exts := make([]string, 0, len(textExtensions)+1)
	exts = append(exts, ".pdf")
	for ext := range textExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}

// IsTextLike reports whether the file is read as plain text, which
// makes short files eligible for preview delivery instead of a
// summary.
func IsTextLike(filename string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Text extracts the textual content of a document by extension.
func Text(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return pdfText(data)
	case textExtensions[ext]:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s is not valid UTF-8: %w", filename, ErrUnsupportedFormat)
		}
		return string(data), nil
	default:
		return "", ErrUnsupportedFormat
	}
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	content, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	text, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return string(text), nil
}
