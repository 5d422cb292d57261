package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// candidate encodings, tried in order
var textEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8", unicode.UTF8},
	{"windows-1252", charmap.Windows1252},
	{"iso-8859-1", charmap.ISO8859_1},
}

// candidate separators, tried in order
var separators = []rune{',', ';', '\t'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText converts raw file content to UTF-8. A UTF-8 BOM is stripped and
// reported as "utf-8-sig"; invalid UTF-8 is decoded as a Windows code page.
func decodeText(raw []byte) ([]byte, string, error) {
	if bytes.HasPrefix(raw, utf8BOM) {
		return raw[len(utf8BOM):], "utf-8-sig", nil
	}
	if utf8.Valid(raw) {
		return raw, "utf-8", nil
	}
	var lastErr error
	for _, cand := range textEncodings[1:] {
		out, _, err := transform.Bytes(cand.enc.NewDecoder(), raw)
		if err == nil {
			return out, cand.name, nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("could not decode input: %w", lastErr)
}

// detectSeparator returns the first candidate separator that splits the
// header line into more than one column.
func detectSeparator(text []byte) (rune, error) {
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	line = bytes.TrimRight(line, "\r")
	for _, sep := range separators {
		r := csv.NewReader(bytes.NewReader(line))
		r.Comma = sep
		r.LazyQuotes = true
		fields, err := r.Read()
		if err != nil && err != io.EOF {
			continue
		}
		if len(fields) > 1 {
			return sep, nil
		}
	}
	return 0, fmt.Errorf("no separator among %q splits the header into columns", string(separators))
}
