package client

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// ArgKind names one supported event argument type. Every handler registers
// an ordered schema of kinds; incoming type-erased arguments are narrowed to
// the declared kind before the handler runs.
type ArgKind int

const (
	KindInt ArgKind = iota
	KindInt8
	KindInt16
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
	KindRune
	KindString

	kindEnd
)

// String returns the kind name.
func (k ArgKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindRune:
		return "rune"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// Handler processes one application event on its target entity. Arguments
// arrive already narrowed to the handler's declared schema, in order.
type Handler func(target *Entity, args []any)

// Registry maps event names to handlers and their argument schemas.
// Registration happens at composition time; no runtime type scanning.
type Registry struct {
	handlers map[string]registration
}

type registration struct {
	schema []ArgKind
	fn     Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register binds a handler and its argument schema to an event name.
//
// Registering a name twice replaces the earlier handler; the last
// registration wins. A schema naming a kind outside the supported set is a
// configuration error and fails loudly here rather than when a message
// arrives.
func (r *Registry) Register(name string, schema []ArgKind, fn Handler) error {
	if name == "" {
		return fmt.Errorf("client: register: empty event name")
	}
	if fn == nil {
		return fmt.Errorf("client: register %q: nil handler", name)
	}
	for i, kind := range schema {
		if kind < 0 || kind >= kindEnd {
			return fmt.Errorf("%w: %q argument %d: %s", ErrUnsupportedKind, name, i, kind)
		}
	}
	r.handlers[name] = registration{schema: schema, fn: fn}
	return nil
}

// Lookup returns the registration for a name.
func (r *Registry) lookup(name string) (registration, bool) {
	reg, ok := r.handlers[name]
	return reg, ok
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(r.handlers)
}

// decodeArgs narrows type-erased wire arguments to a schema.
func decodeArgs(schema []ArgKind, raw []any) ([]any, error) {
	if len(raw) != len(schema) {
		return nil, fmt.Errorf("client: event has %d arguments, schema wants %d", len(raw), len(schema))
	}
	args := make([]any, len(raw))
	for i, v := range raw {
		narrowed, err := narrow(schema[i], v)
		if err != nil {
			return nil, fmt.Errorf("client: argument %d: %w", i, err)
		}
		args[i] = narrowed
	}
	return args, nil
}

// narrow converts one wire value to the declared kind. Numbers arrive as
// json.Number, text as string, booleans as bool.
func narrow(kind ArgKind, v any) (any, error) {
	switch kind {
	case KindInt, KindInt8, KindInt16, KindInt64:
		num, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%s wanted, got %T", kind, v)
		}
		n, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s wanted, got %v", kind, num)
		}
		switch kind {
		case KindInt:
			return int(n), nil
		case KindInt8:
			return int8(n), nil
		case KindInt16:
			return int16(n), nil
		default:
			return n, nil
		}

	case KindFloat32, KindFloat64:
		num, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%s wanted, got %T", kind, v)
		}
		f, err := num.Float64()
		if err != nil {
			return nil, fmt.Errorf("%s wanted, got %v", kind, num)
		}
		if kind == KindFloat32 {
			return float32(f), nil
		}
		return f, nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("bool wanted, got %T", v)
		}
		return b, nil

	case KindRune:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("rune wanted, got %T", v)
		}
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError || size != len(s) {
			return nil, fmt.Errorf("rune wanted, got %q", s)
		}
		return r, nil

	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("string wanted, got %T", v)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}
