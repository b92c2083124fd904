// Package textenc detects and decodes the text encodings seen in uploaded
// scan reports.
package textenc

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported by Detect.
const (
	UTF8     = "utf-8"
	UTF8BOM  = "utf-8-sig"
	UTF16LE  = "utf-16-le"
	UTF16BE  = "utf-16-be"
	Latin1   = "latin-1"
	ISO88591 = "iso-8859-1"
	CP1252   = "cp1252"
)

// BOM signatures, longest first.
var boms = []struct {
	sig []byte
	enc string
}{
	{[]byte{0xEF, 0xBB, 0xBF}, UTF8BOM},
	{[]byte{0xFF, 0xFE}, UTF16LE},
	{[]byte{0xFE, 0xFF}, UTF16BE},
}

// DetectBOM returns the encoding named by a byte-order mark at the start of
// b and the BOM length, or ("", 0).
func DetectBOM(b []byte) (string, int) {
	for _, bom := range boms {
		if bytes.HasPrefix(b, bom.sig) {
			return bom.enc, len(bom.sig)
		}
	}
	return "", 0
}

// Detect guesses the encoding of b: BOM first, then UTF-8 validity, then the
// single-byte code pages. It always returns a usable encoding name.
func Detect(b []byte) string {
	if enc, _ := DetectBOM(b); enc != "" {
		return enc
	}
	if ValidUTF8Prefix(b) {
		return UTF8
	}
	// 0x80-0x9F are C1 controls in Latin-1 but printable in CP1252.
	for _, c := range b {
		if c >= 0x80 && c <= 0x9F {
			return CP1252
		}
	}
	return Latin1
}

// ValidUTF8Prefix reports whether b is valid UTF-8, tolerating a rune cut
// off by the end of the buffer (previews are truncated at arbitrary bytes).
func ValidUTF8Prefix(b []byte) bool {
	if utf8.Valid(b) {
		return true
	}
	// Drop up to three trailing bytes of an incomplete rune.
	for i := 1; i <= 3 && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return utf8.Valid(b[:len(b)-i])
			}
			break
		}
	}
	return false
}

// lookup returns the x/text encoding for name.
func lookup(name string) encoding.Encoding {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case UTF8BOM:
		return unicode.UTF8BOM
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case Latin1, ISO88591, "latin1", "iso8859-1":
		return charmap.ISO8859_1
	case CP1252, "windows-1252":
		return charmap.Windows1252
	default:
		return nil
	}
}

// Decode converts b from the named encoding to a UTF-8 string. Unknown or
// UTF-8 names return b unchanged, with invalid sequences replaced.
func Decode(b []byte, name string) (string, error) {
	enc := lookup(name)
	if enc == nil {
		return strings.ToValidUTF8(string(b), "�"), nil
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeAuto detects the encoding of b and decodes it.
func DecodeAuto(b []byte) (string, string, error) {
	name := Detect(b)
	s, err := Decode(b, name)
	return s, name, err
}

// NewReader returns a reader that decodes r from the named encoding to UTF-8.
// A UTF-8 BOM is stripped for UTF8 as well.
func NewReader(r io.Reader, name string) io.Reader {
	enc := lookup(name)
	if enc == nil {
		return transform.NewReader(r, unicode.BOMOverride(transform.Nop))
	}
	return transform.NewReader(r, enc.NewDecoder())
}
