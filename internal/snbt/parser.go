// Package snbt implements the stringified-NBT textual format: a
// tokenless recursive-descent parser and a configurable serializer,
// together giving NBT trees a diff-friendly, git-mirrorable form.
package snbt

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/naughtychas/gitmc-core/internal/gerrs"
	"github.com/naughtychas/gitmc-core/internal/nbt"
)

// tokenCache holds parsed bare-token tags (numbers, booleans, special
// float keywords) keyed by their raw source text. Entries are cloned on
// hit with Name stripped, so a cached list-element value never leaks a
// borrowed name into a differently-named context.
var tokenCache *lru.Cache[string, *nbt.Tag]

func init() {
	tokenCache, _ = lru.New[string, *nbt.Tag](4096)
}

// Parse reads a single SNBT value from s. Leading and trailing
// whitespace is ignored. An input that is empty once trimmed produces
// an empty Compound, matching the SNBT grammar's convention for an
// absent unnamed tag.
func Parse(s string) (*nbt.Tag, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return &nbt.Tag{Type: nbt.TagCompound, Value: nbt.Compound{}}, nil
	}

	p := &parser{s: s}
	p.skipWS()
	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("%w: trailing data at offset %d", gerrs.ErrMalformedSnbt, p.pos)
	}
	return val, nil
}

// ParseDocument parses a named top-level document, whose root value
// must be a Compound. Unlike Parse, an empty (or whitespace-only) input
// is rejected rather than treated as an empty Compound.
func ParseDocument(name, s string) (*nbt.Document, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty document", gerrs.ErrMalformedSnbt)
	}
	tag, err := Parse(s)
	if err != nil {
		return nil, err
	}
	root, ok := tag.Value.(nbt.Compound)
	if !ok {
		return nil, fmt.Errorf("%w: document root is not a compound", gerrs.ErrMalformedSnbt)
	}
	return &nbt.Document{Name: name, Root: root}, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) skipWS() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.s) {
		return 0, false
	}
	return p.s[p.pos], true
}

func isBareKeyChar(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
		c == '.' || c == '_' || c == '+' || c == '-'
}

func isTokenDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',', ']', '}', ':':
		return true
	}
	return false
}

func (p *parser) parseValue() (*nbt.Tag, error) {
	p.skipWS()
	c, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of input", gerrs.ErrMalformedSnbt)
	}
	switch c {
	case '{':
		return p.parseCompound()
	case '[':
		return p.parseListOrArray()
	case '"', '\'':
		str, err := p.parseQuotedString()
		if err != nil {
			return nil, err
		}
		return &nbt.Tag{Type: nbt.TagString, Value: str}, nil
	default:
		return p.parseBareToken()
	}
}

func (p *parser) parseCompound() (*nbt.Tag, error) {
	p.pos++ // consume '{'
	compound := nbt.Compound{}

	p.skipWS()
	if c, ok := p.peek(); ok && c == '}' {
		p.pos++
		return &nbt.Tag{Type: nbt.TagCompound, Value: compound}, nil
	}

	for {
		p.skipWS()
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if c, ok := p.peek(); !ok || c != ':' {
			return nil, fmt.Errorf("%w: expected ':' after key %q", gerrs.ErrMalformedSnbt, key)
		}
		p.pos++
		p.skipWS()

		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		compound[key] = &nbt.Tag{Type: val.Type, Name: key, Value: val.Value}

		p.skipWS()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated compound", gerrs.ErrMalformedSnbt)
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c == '}' {
			p.pos++
			return &nbt.Tag{Type: nbt.TagCompound, Value: compound}, nil
		}
		return nil, fmt.Errorf("%w: expected ',' or '}', got %q", gerrs.ErrMalformedSnbt, c)
	}
}

func (p *parser) parseKey() (string, error) {
	c, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("%w: expected key", gerrs.ErrMalformedSnbt)
	}
	if c == '"' || c == '\'' {
		return p.parseQuotedString()
	}
	start := p.pos
	for p.pos < len(p.s) && isBareKeyChar(p.s[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("%w: empty key", gerrs.ErrMalformedSnbt)
	}
	return p.s[start:p.pos], nil
}

func (p *parser) parseQuotedString() (string, error) {
	quote := p.s[p.pos]
	p.pos++
	var sb strings.Builder
	for {
		if p.pos >= len(p.s) {
			return "", fmt.Errorf("%w: unterminated quoted string", gerrs.ErrMalformedSnbt)
		}
		c := p.s[p.pos]
		if c == '\\' {
			p.pos++
			if p.pos >= len(p.s) {
				return "", fmt.Errorf("%w: dangling escape at end of string", gerrs.ErrMalformedSnbt)
			}
			e := p.s[p.pos]
			switch e {
			case '\\':
				sb.WriteByte('\\')
			case quote:
				sb.WriteByte(quote)
			case 'n':
				sb.WriteByte('\n')
			default:
				sb.WriteByte(e)
			}
			p.pos++
			continue
		}
		if c == quote {
			p.pos++
			return sb.String(), nil
		}
		sb.WriteByte(c)
		p.pos++
	}
}

func (p *parser) parseListOrArray() (*nbt.Tag, error) {
	p.pos++ // consume '['
	p.skipWS()

	if letter, ok := p.peek(); ok && (letter == 'B' || letter == 'I' || letter == 'L') &&
		p.pos+1 < len(p.s) && p.s[p.pos+1] == ';' {
		p.pos += 2
		return p.parseTypedArray(letter)
	}

	return p.parseList()
}

func (p *parser) parseTypedArray(letter byte) (*nbt.Tag, error) {
	p.skipWS()
	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		switch letter {
		case 'B':
			return &nbt.Tag{Type: nbt.TagByteArray, Value: []byte{}}, nil
		case 'I':
			return &nbt.Tag{Type: nbt.TagIntArray, Value: []int32{}}, nil
		default:
			return &nbt.Tag{Type: nbt.TagLongArray, Value: []int64{}}, nil
		}
	}

	var bytesOut []byte
	var intsOut []int32
	var longsOut []int64

	for {
		p.skipWS()
		tok, err := p.readBareToken()
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimRight(tok, "bBsSlLfFdD")
		n, convErr := strconv.ParseInt(trimmed, 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("%w: invalid array element %q", gerrs.ErrMalformedSnbt, tok)
		}
		switch letter {
		case 'B':
			bytesOut = append(bytesOut, byte(int8(n)))
		case 'I':
			intsOut = append(intsOut, int32(n))
		default:
			longsOut = append(longsOut, n)
		}

		p.skipWS()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated array", gerrs.ErrMalformedSnbt)
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c == ']' {
			p.pos++
			break
		}
		return nil, fmt.Errorf("%w: expected ',' or ']' in array", gerrs.ErrMalformedSnbt)
	}

	switch letter {
	case 'B':
		return &nbt.Tag{Type: nbt.TagByteArray, Value: bytesOut}, nil
	case 'I':
		return &nbt.Tag{Type: nbt.TagIntArray, Value: intsOut}, nil
	default:
		return &nbt.Tag{Type: nbt.TagLongArray, Value: longsOut}, nil
	}
}

func (p *parser) parseList() (*nbt.Tag, error) {
	p.skipWS()
	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		return &nbt.Tag{Type: nbt.TagList, Value: &nbt.List{Type: nbt.TagCompound}}, nil
	}

	var values []any
	var elemType byte

	for {
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			elemType = val.Type
		}
		values = append(values, val.Value)

		p.skipWS()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated list", gerrs.ErrMalformedSnbt)
		}
		if c == ',' {
			p.pos++
			p.skipWS()
			continue
		}
		if c == ']' {
			p.pos++
			break
		}
		return nil, fmt.Errorf("%w: expected ',' or ']' in list", gerrs.ErrMalformedSnbt)
	}

	return &nbt.Tag{Type: nbt.TagList, Value: &nbt.List{Type: elemType, Values: values}}, nil
}

func (p *parser) readBareToken() (string, error) {
	start := p.pos
	for p.pos < len(p.s) && !isTokenDelimiter(p.s[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("%w: expected a value at offset %d", gerrs.ErrMalformedSnbt, start)
	}
	return p.s[start:p.pos], nil
}

func (p *parser) parseBareToken() (*nbt.Tag, error) {
	tok, err := p.readBareToken()
	if err != nil {
		return nil, err
	}
	return classifyToken(tok), nil
}

// classifyToken interprets a bare (unquoted) token as a boolean, a
// special float keyword, a suffixed or unsuffixed number, or — when
// none of those grammars match — a bare string.
func classifyToken(tok string) *nbt.Tag {
	if cached, ok := tokenCache.Get(tok); ok {
		clone := *cached
		clone.Name = ""
		return &clone
	}
	tag := classifyTokenUncached(tok)
	tokenCache.Add(tok, tag)
	clone := *tag
	clone.Name = ""
	return &clone
}

func classifyTokenUncached(tok string) *nbt.Tag {
	switch tok {
	case "true":
		return &nbt.Tag{Type: nbt.TagByte, Value: byte(1)}
	case "false":
		return &nbt.Tag{Type: nbt.TagByte, Value: byte(0)}
	}

	if tag, ok := classifySpecialFloat(tok); ok {
		return tag
	}

	if tag, ok := classifyNumber(tok); ok {
		return tag
	}

	return &nbt.Tag{Type: nbt.TagString, Value: tok}
}

func classifySpecialFloat(tok string) (*nbt.Tag, bool) {
	base, suffix := tok, byte(0)
	if n := len(tok); n > 0 {
		switch tok[n-1] {
		case 'f', 'F':
			base, suffix = tok[:n-1], 'f'
		case 'd', 'D':
			base, suffix = tok[:n-1], 'd'
		}
	}

	var v float64
	switch base {
	case "Infinity", "∞":
		v = math.Inf(1)
	case "-Infinity", "-∞":
		v = math.Inf(-1)
	case "NaN":
		v = math.NaN()
	default:
		return nil, false
	}

	if suffix == 'f' {
		return &nbt.Tag{Type: nbt.TagFloat, Value: float32(v)}, true
	}
	return &nbt.Tag{Type: nbt.TagDouble, Value: v}, true
}

func classifyNumber(tok string) (*nbt.Tag, bool) {
	if tok == "" {
		return nil, false
	}
	suffix, numPart := byte(0), tok
	switch tok[len(tok)-1] {
	case 'b', 'B':
		suffix, numPart = 'b', tok[:len(tok)-1]
	case 's', 'S':
		suffix, numPart = 's', tok[:len(tok)-1]
	case 'l', 'L':
		suffix, numPart = 'l', tok[:len(tok)-1]
	case 'f', 'F':
		suffix, numPart = 'f', tok[:len(tok)-1]
	case 'd', 'D':
		suffix, numPart = 'd', tok[:len(tok)-1]
	}
	if numPart == "" {
		return nil, false
	}

	isFloatShaped := strings.ContainsAny(numPart, ".eE")

	if !isFloatShaped {
		i, err := strconv.ParseInt(numPart, 10, 64)
		if err != nil {
			return nil, false
		}
		switch suffix {
		case 'b':
			return &nbt.Tag{Type: nbt.TagByte, Value: byte(int8(i))}, true
		case 's':
			return &nbt.Tag{Type: nbt.TagShort, Value: int16(i)}, true
		case 'l':
			return &nbt.Tag{Type: nbt.TagLong, Value: i}, true
		case 'f':
			return &nbt.Tag{Type: nbt.TagFloat, Value: float32(i)}, true
		case 'd':
			return &nbt.Tag{Type: nbt.TagDouble, Value: float64(i)}, true
		default:
			return &nbt.Tag{Type: nbt.TagInt, Value: int32(i)}, true
		}
	}

	f, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return nil, false
	}
	switch suffix {
	case 'f':
		return &nbt.Tag{Type: nbt.TagFloat, Value: float32(f)}, true
	case 'd', 0:
		return &nbt.Tag{Type: nbt.TagDouble, Value: f}, true
	default:
		// A fractional literal with an integer-only suffix (b/s/l) is not
		// a valid numeric form; degrade to string.
		return nil, false
	}
}
