package structure

import (
	"bytes"
	"io"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Supported encodings, in detection order.
const (
	EncodingUTF8        = "UTF-8"
	EncodingISO88591    = "ISO-8859-1"
	EncodingWindows1252 = "Windows-1252"
)

// encodingSampleLines is how many leading lines must decode cleanly for an
// encoding to be accepted.
const encodingSampleLines = 20

// fallbackEncodings are tried in order after UTF-8 fails.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{EncodingISO88591, charmap.ISO8859_1},
	{EncodingWindows1252, charmap.Windows1252},
}

// DetectEncoding picks the first encoding under which the leading lines of
// data decode without error. Files that decode under nothing fall back to
// UTF-8; analysis never fails on encoding.
func DetectEncoding(data []byte) string {
	sample := leadingLines(skipBOM(data), encodingSampleLines)

	if utf8.Valid(sample) {
		return EncodingUTF8
	}

	for _, fb := range fallbackEncodings {
		decoded, err := fb.enc.NewDecoder().Bytes(sample)
		if err != nil {
			continue
		}
		if cleanText(decoded) {
			return fb.name
		}
	}

	return EncodingUTF8
}

// Decode returns a reader producing UTF-8 text from data in the named
// encoding. A UTF-8 BOM is skipped. Invalid UTF-8 sequences are replaced so
// the tokenizer always sees valid text.
func Decode(r io.Reader, enc string) io.Reader {
	r = newBOMSkippingReader(r)

	for _, fb := range fallbackEncodings {
		if fb.name == enc {
			return transform.NewReader(r, fb.enc.NewDecoder())
		}
	}

	return newUTF8Sanitizer(r)
}

// cleanText rejects decoded text containing replacement runes or control
// characters other than tab, CR and LF. ISO-8859-1 maps every byte, so this
// is what lets C1 control bytes (0x80-0x9F) fall through to Windows-1252.
func cleanText(b []byte) bool {
	for _, r := range string(b) {
		if r == utf8.RuneError {
			return false
		}
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// leadingLines returns the prefix of data holding at most n lines.
func leadingLines(data []byte, n int) []byte {
	end := 0
	for i := 0; i < n; i++ {
		idx := bytes.IndexByte(data[end:], '\n')
		if idx < 0 {
			return data
		}
		end += idx + 1
	}
	return data[:end]
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func skipBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}
