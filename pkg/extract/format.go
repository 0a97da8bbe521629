// Package extract converts raw uploaded bytes into plain text.
//
// The extractor is chosen by file extension through the closed Format enum.
// Unknown extensions, and known formats whose payload turns out to be
// corrupt, fall back to decoding the raw bytes as UTF-8 with invalid
// sequences replaced.
package extract

import (
	"path/filepath"
	"strings"
)

// Format is the tagged variant of supported document formats.
type Format int

const (
	// Unknown is the fallback arm: best-effort UTF-8 decoding.
	Unknown Format = iota
	PlainText
	Markdown
	StructuredData
	Markup
	PDF
)

var formatNames = map[Format]string{
	Unknown:        "unknown",
	PlainText:      "text",
	Markdown:       "markdown",
	StructuredData: "structured",
	Markup:         "markup",
	PDF:            "pdf",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

var extensions = map[string]Format{
	".txt":      PlainText,
	".text":     PlainText,
	".md":       Markdown,
	".markdown": Markdown,
	".json":     StructuredData,
	".yaml":     StructuredData,
	".yml":      StructuredData,
	".html":     Markup,
	".htm":      Markup,
	".pdf":      PDF,
}

// FormatOf returns the Format for filename based on its extension.
func FormatOf(filename string) Format {
	if f, ok := extensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}
	return Unknown
}

// Supported reports whether filename has an extension with a dedicated
// extractor.
func Supported(filename string) bool {
	return FormatOf(filename) != Unknown
}
