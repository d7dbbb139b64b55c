package themeconfig

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidLiteral is returned when a literal looks numeric but does not
// convert.
var ErrInvalidLiteral = errors.New("invalid literal")

// Kind is the inferred type of a Value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a theme setting of one of four kinds. Only the field matching
// Kind is meaningful.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }

// Any returns the value as a plain Go value for encoding.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	default:
		return v.Str
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// node encodes v so that it decodes back to the same kind. Floats keep a
// fractional part so 1.0 does not read back as an int.
func (v Value) node() *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode}
	switch v.Kind {
	case KindInt:
		n.Tag, n.Value = "!!int", strconv.FormatInt(v.Int, 10)
	case KindFloat:
		n.Tag, n.Value = "!!float", formatFloat(v.Float)
	case KindBool:
		n.Tag, n.Value = "!!bool", strconv.FormatBool(v.Bool)
	default:
		n.Tag, n.Value = "!!str", v.Str
	}
	return n
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ParseValue infers the kind of a command-line literal. The checks run in a
// fixed order: the exact words "true" and "false" are bools, anything
// containing '.' is a float, a non-empty run of ASCII digits is an int, and
// everything else is a string. A literal that picks the float or int branch
// but does not convert is an error, never a silent fallback to string.
func ParseValue(s string) (Value, error) {
	switch {
	case s == "true" || s == "false":
		return BoolValue(s == "true"), nil
	case strings.Contains(s, "."):
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a float", ErrInvalidLiteral, s)
		}
		return FloatValue(f), nil
	case isDigits(s):
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is out of range for an int", ErrInvalidLiteral, s)
		}
		return IntValue(i), nil
	default:
		return StringValue(s), nil
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// fromAny converts a decoded YAML scalar back into a Value.
func fromAny(v any) Value {
	switch x := v.(type) {
	case bool:
		return BoolValue(x)
	case int:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case uint64:
		return IntValue(int64(x))
	case float64:
		return FloatValue(x)
	case string:
		return StringValue(x)
	case nil:
		return StringValue("")
	default:
		return StringValue(fmt.Sprint(x))
	}
}

// MarshalYAML keeps the kind when v is embedded in a larger document.
func (v Value) MarshalYAML() (any, error) {
	return v.node(), nil
}
