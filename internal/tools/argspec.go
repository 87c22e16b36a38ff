package tools

import (
	"fmt"
	"strings"

	"github.com/intercomswap/swap-core/internal/util"
)

// Kind names the primitive shape a tool argument must decode to.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
)

// Field describes one allowed argument: its primitive kind plus the
// optional constraints spec §4.9 requires ("strings trimmed with
// min/max/pattern; integers with min/max; atomic amounts ^[0-9]+$; hex32
// ^[0-9a-f]{64}$; hex33 ^[0-9a-f]{66}$; base58 strictly bitcoin-alphabet").
type Field struct {
	Required bool
	Kind     Kind

	// String constraints.
	MinLen  int
	MaxLen  int
	Pattern string // one of the Pattern* constants below, or "" for none

	// Integer constraints.
	Min int64
	Max int64
}

// Pattern names a canned string-shape check beyond plain length bounds.
const (
	PatternNone       = ""
	PatternHex32      = "hex32"
	PatternHex33      = "hex33"
	PatternBase58     = "base58"
	PatternDecimal    = "decimal_amount"
)

// ArgSpec is a tool's full allowed-keys map.
type ArgSpec map[string]Field

func (f Field) Validate(value any) error {
	switch f.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		s = strings.TrimSpace(s)
		if f.MinLen > 0 && len(s) < f.MinLen {
			return fmt.Errorf("too short (min %d)", f.MinLen)
		}
		if f.MaxLen > 0 && len(s) > f.MaxLen {
			return fmt.Errorf("too long (max %d)", f.MaxLen)
		}
		return validatePattern(f.Pattern, s)
	case KindInt:
		n, ok := asInt64(value)
		if !ok {
			return fmt.Errorf("expected integer, got %T", value)
		}
		if f.Min != 0 && n < f.Min {
			return fmt.Errorf("below minimum %d", f.Min)
		}
		if f.Max != 0 && n > f.Max {
			return fmt.Errorf("above maximum %d", f.Max)
		}
		return nil
	case KindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		return nil
	default:
		return fmt.Errorf("unsupported field kind %d", f.Kind)
	}
}

func asInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func validatePattern(pattern, s string) error {
	switch pattern {
	case PatternNone:
		return nil
	case PatternHex32:
		if !util.IsHex32(s) {
			return fmt.Errorf("not a 64-char lowercase hex string")
		}
	case PatternHex33:
		if len(s) != 66 {
			return fmt.Errorf("not a 66-char hex string")
		}
	case PatternBase58:
		if !util.IsValidBase58(s) {
			return fmt.Errorf("not valid base58")
		}
	case PatternDecimal:
		if !util.IsDecimalAmount(s) {
			return fmt.Errorf("not a non-negative decimal integer string")
		}
	default:
		return fmt.Errorf("unknown pattern %q", pattern)
	}
	return nil
}

// Str and Int pull already-validated values out of an Args map with the
// handler-side conversions Go's json.Unmarshal-into-any shape needs.
func Str(args Args, key string) string {
	s, _ := args[key].(string)
	return s
}

func Int(args Args, key string) int64 {
	n, _ := asInt64(args[key])
	return n
}

func Bool(args Args, key string) bool {
	b, _ := args[key].(bool)
	return b
}
