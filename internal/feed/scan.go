package feed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
)

var (
	groupOpen  = []byte("<base_event")
	groupClose = []byte("</base_event")
	utf8BOM    = []byte("\xef\xbb\xbf")

	// errGroupCut marks a base_event whose end tag never came before the
	// next base_event started.
	errGroupCut = errors.New("base_event not closed before the next group")

	encodingDecl = regexp.MustCompile(`^\s*<\?xml[^?]*?encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)
)

const prologLimit = 256

// utf8Source converts the document to UTF-8 according to its XML
// declaration.
func utf8Source(r io.Reader) (*bufio.Reader, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(prologLimit)
	m := encodingDecl.FindSubmatch(bytes.TrimPrefix(head, utf8BOM))
	if m == nil || strings.EqualFold(string(m[1]), "utf-8") {
		return br, nil
	}
	cr, err := charset.NewReaderLabel(string(m[1]), br)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return bufio.NewReader(cr), nil
}

// groupScanner cuts the raw bytes of consecutive base_event elements out of
// the stream. Each group is decoded on its own, so a broken group does not
// take the rest of the document down with it.
type groupScanner struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

// next returns the next group. The slice is only valid until the following
// call. io.EOF means no further group starts; io.ErrUnexpectedEOF means the
// stream ended inside one.
func (s *groupScanner) next() ([]byte, error) {
	for !s.at(groupOpen) {
		if _, err := s.r.ReadByte(); err != nil {
			return nil, err
		}
	}
	s.buf.Reset()
	if err := s.copyTag(); err != nil {
		return nil, err
	}
	if bytes.HasSuffix(s.buf.Bytes(), []byte("/>")) {
		return s.buf.Bytes(), nil
	}
	for {
		if b, _ := s.r.Peek(1); len(b) == 1 && b[0] == '<' {
			if s.at(groupClose) {
				if err := s.copyTag(); err != nil {
					return nil, err
				}
				return s.buf.Bytes(), nil
			}
			if s.at(groupOpen) {
				return nil, errGroupCut
			}
		}
		c, err := s.r.ReadByte()
		if err != nil {
			return nil, unexpected(err)
		}
		s.buf.WriteByte(c)
	}
}

// copyTag copies one tag up to its closing '>', skipping over quoted
// attribute values.
func (s *groupScanner) copyTag() error {
	var quote byte
	for {
		c, err := s.r.ReadByte()
		if err != nil {
			return unexpected(err)
		}
		s.buf.WriteByte(c)
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			continue
		case c == '"' || c == '\'':
			quote = c
			continue
		case c == '>':
			return nil
		}
		if s.at(groupOpen) {
			return errGroupCut
		}
	}
}

// at reports whether the unread input starts with tag as a whole name.
func (s *groupScanner) at(tag []byte) bool {
	b, _ := s.r.Peek(len(tag) + 1)
	if !bytes.HasPrefix(b, tag) {
		return false
	}
	if len(b) == len(tag) {
		return true
	}
	switch b[len(tag)] {
	case ' ', '\t', '\r', '\n', '/', '>':
		return true
	}
	return false
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
