package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/yaml.v3"
)

// ErrExtraction marks a payload that its format's extractor could not read.
// Extract recovers from it with the fallback decoder and reports it next to
// the text.
var ErrExtraction = errors.New("extraction failed")

// Result is the outcome of extracting one file.
type Result struct {
	// Text is the extracted plain text.
	Text string

	// Format is the format that was selected for the file.
	Format Format

	// Fallback is set when the dedicated extractor failed and Text came from
	// the best-effort decoder. It wraps ErrExtraction.
	Fallback error
}

// Extract converts raw into plain text using the extractor for filename's
// format. It never fails: corrupt input degrades to the fallback decoder.
func Extract(filename string, raw []byte) Result {
	format := FormatOf(filename)

	var (
		text string
		err  error
	)
	switch format {
	case PlainText, Markdown:
		text = decodeText(raw)
	case StructuredData:
		text, err = structured(filepath.Ext(filename), raw)
	case Markup:
		text, err = markup(raw)
	case PDF:
		text, err = pdfText(raw)
	default:
		text = decodeText(raw)
	}

	if err != nil {
		return Result{
			Text:     decodeText(raw),
			Format:   format,
			Fallback: fmt.Errorf("%w: %s as %s: %v", ErrExtraction, filename, format, err),
		}
	}
	return Result{Text: text, Format: format}
}

// decodeText decodes raw as UTF-8, replacing invalid sequences with U+FFFD.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

// structured pretty prints JSON with a two space indent. YAML documents are
// re-encoded as JSON so both render the same way. Key order is kept as
// written.
func structured(ext string, raw []byte) (string, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc yaml.Node
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return "", fmt.Errorf("decoding yaml: %w", err)
		}
		v, err := fromYAML(&doc)
		if err != nil {
			return "", fmt.Errorf("decoding yaml: %w", err)
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding json: %w", err)
		}
		return string(out), nil
	default:
		var buf bytes.Buffer
		if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
			return "", fmt.Errorf("decoding json: %w", err)
		}
		return buf.String(), nil
	}
}

// object is a JSON object that marshals its members in insertion order.
type object []member

type member struct {
	key   string
	value any
}

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// fromYAML converts a decoded YAML node into values json.Marshal renders with
// mapping keys in document order.
func fromYAML(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromYAML(n.Content[0])
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.MappingNode:
		obj := make(object, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := fromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj = append(obj, member{key: n.Content[i].Value, value: v})
		}
		return obj, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case 0:
		return nil, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// markup returns the visible text of an HTML document, one text node per
// line. Script, style and template contents are skipped.
func markup(raw []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(raw))

	var (
		lines []string
		skip  int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.Join(lines, "\n"), nil
			}
			return "", z.Err()

		case html.StartTagToken:
			if hidden(z) {
				skip++
			}

		case html.EndTagToken:
			if hidden(z) && skip > 0 {
				skip--
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			if line := strings.TrimSpace(string(z.Text())); line != "" {
				lines = append(lines, line)
			}
		}
	}
}

func hidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch atom.Lookup(name) {
	case atom.Script, atom.Style, atom.Template, atom.Noscript:
		return true
	}
	return false
}

// pdfText extracts the plain text layer of a PDF. The pdf reader panics on
// some malformed inputs, so panics are turned into errors.
func pdfText(raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return decodeText(buf.Bytes()), nil
}
