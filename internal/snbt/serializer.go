package snbt

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/naughtychas/gitmc-core/internal/nbt"
)

// Mode selects whether Serialize lays its output on one line or
// indents it across many.
type Mode int

const (
	Minified Mode = iota
	Expanded
)

// KeyQuoting controls how Compound keys are quoted.
type KeyQuoting int

const (
	KeyAuto KeyQuoting = iota
	KeyAlwaysDouble
	KeyAlwaysSingle
)

// StringQuoting controls how String tag values are quoted.
type StringQuoting int

const (
	StringAuto StringQuoting = iota
	StringAlwaysDouble
	StringAlwaysSingle
)

// NewlineHandling controls how literal newlines inside strings are
// represented.
type NewlineHandling int

const (
	NewlineEscape NewlineHandling = iota
	NewlineSentinel
	NewlineLiteral
)

const newlineSentinelToken = "\\u000a"

// Options configures Serialize. DefaultOptions returns vanilla-style
// settings: minified, with suffixes and array prefixes on.
type Options struct {
	Mode            Mode
	NumberSuffixes  bool
	ArrayPrefixes   bool
	KeyQuoting      KeyQuoting
	StringQuoting   StringQuoting
	Newlines        NewlineHandling
}

// DefaultOptions returns the serializer's default configuration.
func DefaultOptions() Options {
	return Options{
		Mode:           Minified,
		NumberSuffixes: true,
		ArrayPrefixes:  true,
		KeyQuoting:     KeyAuto,
		StringQuoting:  StringAuto,
		Newlines:       NewlineEscape,
	}
}

// Serialize renders tag as SNBT text under opts.
func Serialize(tag *nbt.Tag, opts Options) string {
	var sb strings.Builder
	writeValue(&sb, tag.Type, tag.Value, opts, 0)
	return sb.String()
}

const indentUnit = "    "

func writeIndent(sb *strings.Builder, opts Options, depth int) {
	if opts.Mode != Expanded {
		return
	}
	sb.WriteByte('\n')
	for i := 0; i < depth; i++ {
		sb.WriteString(indentUnit)
	}
}

func writeValue(sb *strings.Builder, tagType byte, value any, opts Options, depth int) {
	switch tagType {
	case nbt.TagByte:
		v := value.(byte)
		sb.WriteString(strconv.FormatInt(int64(int8(v)), 10))
		if opts.NumberSuffixes {
			sb.WriteByte('b')
		}
	case nbt.TagShort:
		sb.WriteString(strconv.FormatInt(int64(value.(int16)), 10))
		if opts.NumberSuffixes {
			sb.WriteByte('s')
		}
	case nbt.TagInt:
		sb.WriteString(strconv.FormatInt(int64(value.(int32)), 10))
	case nbt.TagLong:
		sb.WriteString(strconv.FormatInt(value.(int64), 10))
		if opts.NumberSuffixes {
			sb.WriteByte('L')
		}
	case nbt.TagFloat:
		sb.WriteString(formatFloat(float64(value.(float32)), 32, opts.NumberSuffixes, 'f'))
	case nbt.TagDouble:
		sb.WriteString(formatFloat(value.(float64), 64, opts.NumberSuffixes, 'd'))
	case nbt.TagString:
		writeQuotedString(sb, value.(string), opts)
	case nbt.TagByteArray:
		// The array prefix is what lets the parser tell a ByteArray apart
		// from a List of Byte; it is always emitted regardless of
		// opts.ArrayPrefixes so the round-trip invariant holds for every
		// option set, not just the ones with prefixes on.
		arr := value.([]byte)
		writeTypedArray(sb, "B", true, len(arr), func(i int) string {
			return strconv.FormatInt(int64(int8(arr[i])), 10) + "b"
		})
	case nbt.TagIntArray:
		arr := value.([]int32)
		writeTypedArray(sb, "I", true, len(arr), func(i int) string {
			return strconv.FormatInt(int64(arr[i]), 10)
		})
	case nbt.TagLongArray:
		arr := value.([]int64)
		writeTypedArray(sb, "L", true, len(arr), func(i int) string {
			return strconv.FormatInt(arr[i], 10) + "L"
		})
	case nbt.TagList:
		writeList(sb, value.(*nbt.List), opts, depth)
	case nbt.TagCompound:
		writeCompound(sb, value.(nbt.Compound), opts, depth)
	default:
		fmt.Fprintf(sb, "<unsupported tag %d>", tagType)
	}
}

func writeTypedArray(sb *strings.Builder, letter string, prefixed bool, n int, elem func(i int) string) {
	sb.WriteByte('[')
	if prefixed {
		sb.WriteString(letter)
		sb.WriteByte(';')
		if n > 0 {
			sb.WriteByte(' ')
		}
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(elem(i))
	}
	sb.WriteByte(']')
}

// primitiveNumeric reports whether t is a scalar numeric tag type (not
// Compound, List, String, or an array), per the "lists of primitive
// numeric types stay on one line" rule.
func primitiveNumeric(t byte) bool {
	switch t {
	case nbt.TagByte, nbt.TagShort, nbt.TagInt, nbt.TagLong, nbt.TagFloat, nbt.TagDouble:
		return true
	}
	return false
}

func writeList(sb *strings.Builder, list *nbt.List, opts Options, depth int) {
	if len(list.Values) == 0 {
		sb.WriteString("[]")
		return
	}

	oneLine := opts.Mode != Expanded || primitiveNumeric(list.Type)

	sb.WriteByte('[')
	for i, v := range list.Values {
		if i > 0 {
			sb.WriteByte(',')
			if oneLine {
				sb.WriteByte(' ')
			}
		}
		if !oneLine {
			writeIndent(sb, opts, depth+1)
		}
		writeValue(sb, list.Type, v, opts, depth+1)
	}
	if !oneLine {
		writeIndent(sb, opts, depth)
	}
	sb.WriteByte(']')
}

func writeCompound(sb *strings.Builder, c nbt.Compound, opts Options, depth int) {
	if len(c) == 0 {
		sb.WriteString("{}")
		return
	}

	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
			if opts.Mode != Expanded {
				sb.WriteByte(' ')
			}
		}
		writeIndent(sb, opts, depth+1)
		writeKey(sb, k, opts)
		sb.WriteByte(':')
		sb.WriteByte(' ')
		tag := c[k]
		writeValue(sb, tag.Type, tag.Value, opts, depth+1)
	}
	writeIndent(sb, opts, depth)
	sb.WriteByte('}')
}

func isBareSafeKey(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		if !isBareKeyChar(k[i]) {
			return false
		}
	}
	return true
}

func writeKey(sb *strings.Builder, key string, opts Options) {
	switch opts.KeyQuoting {
	case KeyAlwaysDouble:
		writeQuoted(sb, key, '"', opts.Newlines)
	case KeyAlwaysSingle:
		writeQuoted(sb, key, '\'', opts.Newlines)
	default:
		if isBareSafeKey(key) {
			sb.WriteString(key)
		} else {
			writeQuoted(sb, key, '"', opts.Newlines)
		}
	}
}

func writeQuotedString(sb *strings.Builder, s string, opts Options) {
	switch opts.StringQuoting {
	case StringAlwaysDouble:
		writeQuoted(sb, s, '"', opts.Newlines)
	case StringAlwaysSingle:
		writeQuoted(sb, s, '\'', opts.Newlines)
	default:
		quote := byte('"')
		if strings.Contains(s, `"`) && !strings.Contains(s, `'`) {
			quote = '\''
		}
		writeQuoted(sb, s, quote, opts.Newlines)
	}
}

func writeQuoted(sb *strings.Builder, s string, quote byte, newlines NewlineHandling) {
	sb.WriteByte(quote)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\n':
			switch newlines {
			case NewlineLiteral:
				sb.WriteByte('\n')
			case NewlineSentinel:
				sb.WriteString(newlineSentinelToken)
			default:
				sb.WriteString(`\n`)
			}
		case c == '\\' || c == quote:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(quote)
}

// formatFloat renders f with enough digits for an exact round trip,
// appending a suffix letter when suffixes are enabled. Special values
// use SNBT's keyword spellings.
func formatFloat(f float64, bits int, suffixed bool, suffixLetter byte) string {
	var body string
	switch {
	case math.IsNaN(f):
		body = "NaN"
	case math.IsInf(f, 1):
		body = "Infinity"
	case math.IsInf(f, -1):
		body = "-Infinity"
	default:
		body = strconv.FormatFloat(f, 'g', -1, bits)
		if !strings.ContainsAny(body, ".eE") {
			body += ".0"
		}
	}
	if suffixed {
		return body + string(suffixLetter)
	}
	return body
}
