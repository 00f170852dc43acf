package rewrite

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	charsetPrefix = []byte(`@charset "`)
	bomUTF16BE    = []byte{0xFE, 0xFF}
	bomUTF16LE    = []byte{0xFF, 0xFE}
)

// LookupCharset finds encoding by its label. UTF-8 is reported as nil
// encoding, such content is processed as is.
func LookupCharset(label string) (encoding.Encoding, error) {
	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, fmt.Errorf("unknown character set '%s'", label)
	}
	if name == "utf-8" {
		return nil, nil
	}
	return enc, nil
}

// declaredCharset returns label of @charset rule when style sheet starts
// with one. Rule must be the very first thing in the file and use exact
// syntax.
func declaredCharset(data []byte) string {
	if !bytes.HasPrefix(data, charsetPrefix) {
		return ""
	}
	rest := data[len(charsetPrefix):]
	end := bytes.Index(rest, []byte(`";`))
	if end <= 0 || bytes.ContainsAny(rest[:end], "\"\n") {
		return ""
	}
	return string(rest[:end])
}

// selectEncoding decides how style sheet content is encoded: forced
// encoding wins, then byte order mark, then @charset rule. nil means UTF-8.
func selectEncoding(data []byte, forced encoding.Encoding) (encoding.Encoding, error) {
	switch {
	case forced != nil:
		return forced, nil
	case bytes.HasPrefix(data, bomUTF16BE):
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	case bytes.HasPrefix(data, bomUTF16LE):
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	}
	label := declaredCharset(data)
	if len(label) == 0 {
		return nil, nil
	}
	return LookupCharset(label)
}

func charsetName(enc encoding.Encoding) string {
	if enc == nil {
		return "UTF-8"
	}
	if name, err := ianaindex.IANA.Name(enc); err == nil {
		return name
	}
	return fmt.Sprint(enc)
}

func decode(data []byte, enc encoding.Encoding) ([]byte, error) {
	if enc == nil {
		return data, nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode from %s: %w", charsetName(enc), err)
	}
	return out, nil
}

func encode(data []byte, enc encoding.Encoding) ([]byte, error) {
	if enc == nil {
		return data, nil
	}
	out, err := enc.NewEncoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("unable to encode to %s: %w", charsetName(enc), err)
	}
	return out, nil
}
