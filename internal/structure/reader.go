package structure

// reader.go holds the byte-level readers applied before tokenization:
//
//   - bomSkippingReader drops a leading UTF-8 BOM written by Windows tools
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'
//
// Both operate on a stream so the tokenizer never sees a BOM inside the
// first header cell or a broken rune in the middle of a field.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

type bomSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{br: bufio.NewReader(r)}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		head, err := r.br.Peek(len(utf8BOM))
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			if _, err := r.br.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return r.br.Read(p)
}

// utf8Sanitizer decodes rune by rune. bufio.Reader.ReadRune reports an
// invalid byte as (RuneError, 1), which is the only case rewritten.
type utf8Sanitizer struct {
	br  *bufio.Reader
	out []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{br: bufio.NewReader(r)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(s.out) < len(p) {
		r, size, err := s.br.ReadRune()
		if err != nil {
			if len(s.out) > 0 {
				break
			}
			return 0, err
		}
		if r == utf8.RuneError && size == 1 {
			s.out = append(s.out, '?')
			continue
		}
		s.out = utf8.AppendRune(s.out, r)
	}

	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}
