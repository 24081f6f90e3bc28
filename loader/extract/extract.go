// Package extract turns uploaded or watched files into documents ready for
// chunking.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"ragbridge/types"
)

const (
	SourcePDF  = "pdf"
	SourceText = "text"
)

// FromText wraps UTF-8 text as a single document.
func FromText(data []byte, title string) ([]types.Document, error) {
	if !utf8.Valid(data) {
		return nil, types.NewConfigError(fmt.Errorf("%q is neither a PDF nor UTF-8 text", title))
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	if isBlank(text) {
		return nil, nil
	}
	return []types.Document{{Title: title, Source: SourceText, Page: 1, Content: text}}, nil
}

// FromBytes sniffs the payload: a %PDF header means PDF, anything else must be
// UTF-8 text.
func FromBytes(name string, data []byte, margins Margins) ([]types.Document, error) {
	title := Title(name)
	if IsPDF(data) {
		return FromPDF(bytes.NewReader(data), title, margins)
	}
	return FromText(data, title)
}

func FromFile(path string, margins Margins) ([]types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return FromBytes(path, data, margins)
}

// Title derives a readable title from a file name: extension dropped,
// underscores and dashes turned into spaces.
func Title(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
