package feed

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// elementVisitor receives open/close events from scan. Names are lower-cased
// local names; text is the trimmed character data of the closing element.
type elementVisitor interface {
	open(name string)
	close(name, text string)
}

// scan walks text token by token and never builds a tree. The XML
// declaration usually claims UTF-16LE; the text is already decoded, so the
// charset reader passes input through unchanged.
func scan(text string, v elementVisitor) error {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var buf strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			buf.Reset()
			v.open(strings.ToLower(t.Name.Local))
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			v.close(strings.ToLower(t.Name.Local), strings.TrimSpace(buf.String()))
			buf.Reset()
		}
	}
}

// fieldScope accumulates leaf values between the open and close of one
// group or row element.
type fieldScope struct {
	tag    string
	active bool
	fields fields
}

func (s *fieldScope) begin() {
	s.active = true
	s.fields = make(fields, 16)
}

func (s *fieldScope) set(name, value string) {
	if s.active && name != s.tag {
		s.fields[name] = value
	}
}

func (s *fieldScope) end() fields {
	f := s.fields
	s.active = false
	s.fields = nil
	return f
}

// fields is a flat name/value map for one scope
type fields map[string]string

func (f fields) get(name string) string {
	return strings.TrimSpace(f[name])
}

// first returns the first non-empty value among names
func (f fields) first(names ...string) string {
	for _, n := range names {
		if v := f.get(n); v != "" {
			return v
		}
	}
	return ""
}

// groupVisitor emits one flat field map per occurrence of tag
type groupVisitor struct {
	scope fieldScope
	count int
	emit  func(n int, f fields)
}

func newGroupVisitor(tag string, emit func(n int, f fields)) *groupVisitor {
	return &groupVisitor{scope: fieldScope{tag: tag}, emit: emit}
}

func (v *groupVisitor) open(name string) {
	if name == v.scope.tag {
		v.scope.begin()
	}
}

func (v *groupVisitor) close(name, text string) {
	if name != v.scope.tag {
		v.scope.set(name, text)
		return
	}
	if !v.scope.active {
		return
	}
	v.count++
	v.emit(v.count, v.scope.end())
}
