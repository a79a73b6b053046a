// Package xmltree decodes vendor XML into a generic attributed tree.
//
// The tree keeps every element and attribute value as a string so vendor
// codes with leading zeros ("001") survive round-trips. The only value
// transformation offered is the tolerant boolean coercion used across
// NAXML dialects (Y/N, true/false).
//
// Decoding is hardened: DTD subsets are rejected outright, so external
// entities and parameter entities can never be resolved or expanded.
package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

var (
	ErrDTDForbidden = errors.New("xmltree: DTD subsets are not allowed")
	ErrEmptyInput   = errors.New("xmltree: empty input")
)

// SyntaxError reports a malformed document with its position.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("xmltree: malformed XML at line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Node is one decoded element. Children preserve document order and
// multiplicity; attributes are kept apart from element text.
type Node struct {
	Name  string
	Attrs map[string]string
	Text  string

	children []*Node
	byName   map[string][]*Node
}

// Options configures a decode run.
type Options struct {
	// ForceList names elements that must always render as sequences in
	// Flatten output, even when a single occurrence is present. Dialects
	// declare their repeating detail names here (LineItem, Tender, ...).
	ForceList []string
}

// Decode parses data into a tree rooted at the document element.
func Decode(data []byte) (*Node, error) {
	data = stripBOM(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.CharsetReader = charsetReader
	// Predefined XML entities only. Anything declared in a DTD is refused
	// before it could be referenced.
	dec.Entity = map[string]string{}

	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, positionErr(data, dec.InputOffset(), err)
		}

		switch t := tok.(type) {
		case xml.Directive:
			if isDoctype(t) {
				return nil, ErrDTDForbidden
			}
		case xml.StartElement:
			n := &Node{
				Name:   t.Name.Local,
				byName: make(map[string][]*Node),
			}
			if len(t.Attr) > 0 {
				n.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					n.Attrs[a.Name.Local] = a.Value
				}
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
				parent.byName[n.Name] = append(parent.byName[n.Name], n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, ErrEmptyInput
	}
	for _, n := range collect(root) {
		n.Text = strings.TrimSpace(n.Text)
	}
	return root, nil
}

func collect(n *Node) []*Node {
	out := []*Node{n}
	for _, c := range n.children {
		out = append(out, collect(c)...)
	}
	return out
}

func isDoctype(d xml.Directive) bool {
	s := strings.TrimSpace(string(d))
	return strings.HasPrefix(strings.ToUpper(s), "DOCTYPE")
}

func positionErr(data []byte, offset int64, err error) error {
	var syn *xml.SyntaxError
	if errors.As(err, &syn) {
		col := columnAt(data, offset)
		return &SyntaxError{Line: syn.Line, Column: col, Msg: syn.Msg}
	}
	line, col := lineColAt(data, offset)
	return &SyntaxError{Line: line, Column: col, Msg: err.Error()}
}

func columnAt(data []byte, offset int64) int {
	_, col := lineColAt(data, offset)
	return col
}

func lineColAt(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

// charsetReader tolerates the charset labels vendors actually emit
// (windows-1252, ISO-8859-1) by resolving them through the IANA index.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("xmltree: unsupported charset %q", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// Child returns the first child element with one of the given names.
// Multiple names support the ...ID / ...Id spelling drift across vendors.
func (n *Node) Child(names ...string) *Node {
	if n == nil {
		return nil
	}
	for _, name := range names {
		if list := n.byName[name]; len(list) > 0 {
			return list[0]
		}
	}
	return nil
}

// List returns every child element with one of the given names, in
// document order. The result is always a slice, even for one occurrence.
func (n *Node) List(names ...string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.children {
		for _, name := range names {
			if c.Name == name {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Children returns all child elements in document order.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	return n.children
}

// Str returns the trimmed text of the first matching child, or "".
func (n *Node) Str(names ...string) string {
	s, _ := n.StrOK(names...)
	return s
}

// StrOK reports whether a matching child exists along with its text.
func (n *Node) StrOK(names ...string) (string, bool) {
	c := n.Child(names...)
	if c == nil {
		return "", false
	}
	return c.Text, true
}

// Attr returns the named attribute, or "".
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}

// Bool applies the tolerant NAXML boolean coercion to the first matching
// child's text: Y/y/true → true, N/n/false → false. Absent or
// unrecognized values report ok=false.
func (n *Node) Bool(names ...string) (value, ok bool) {
	s, found := n.StrOK(names...)
	if !found {
		return false, false
	}
	return CoerceBool(s)
}

// CoerceBool is the single value transformation the tree permits.
func CoerceBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1":
		return true, true
	case "n", "no", "false", "0":
		return false, true
	}
	return false, false
}

// Flatten renders the subtree as generic map data: element text becomes
// strings, attributes land under "@"-prefixed keys, and names listed in
// opts.ForceList always materialize as []any.
func (n *Node) Flatten(opts Options) any {
	force := make(map[string]bool, len(opts.ForceList))
	for _, name := range opts.ForceList {
		force[name] = true
	}
	return n.flatten(force)
}

func (n *Node) flatten(force map[string]bool) any {
	if len(n.children) == 0 && len(n.Attrs) == 0 {
		return n.Text
	}
	m := make(map[string]any)
	for k, v := range n.Attrs {
		m["@"+k] = v
	}
	if n.Text != "" {
		m["#text"] = n.Text
	}
	seen := make(map[string]bool)
	for _, c := range n.children {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		siblings := n.byName[c.Name]
		if len(siblings) > 1 || force[c.Name] {
			list := make([]any, 0, len(siblings))
			for _, s := range siblings {
				list = append(list, s.flatten(force))
			}
			m[c.Name] = list
		} else {
			m[c.Name] = c.flatten(force)
		}
	}
	return m
}
