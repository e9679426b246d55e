package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// ValueKind tags the scalar stored in a metadata entry.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindBool   ValueKind = "bool"
	KindNull   ValueKind = "null"
)

// Value is a scalar metadata value. Only the field matching Kind is meaningful.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func NullValue() Value { return Value{Kind: KindNull} }

// String renders the value the way it appears in flattened chunk content.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "null"
	}
}

// Interface returns the value as a plain Go scalar.
func (v Value) Interface() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

// MetadataEntry is one key/value pair.
type MetadataEntry struct {
	Key   string
	Value Value
}

// Metadata is an ordered mapping of string keys to scalar values.
// Set on an existing key replaces the value in place and keeps its position.
type Metadata []MetadataEntry

// Set adds or replaces a key.
func (m Metadata) Set(key string, v Value) Metadata {
	for i := range m {
		if m[i].Key == key {
			m[i].Value = v
			return m
		}
	}
	return append(m, MetadataEntry{Key: key, Value: v})
}

// Get returns the value stored under key.
func (m Metadata) Get(key string) (Value, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// GetString returns a string value or "" when absent or of another kind.
func (m Metadata) GetString(key string) string {
	v, ok := m.Get(key)
	if !ok || v.Kind != KindString {
		return ""
	}
	return v.Str
}

// Validate rejects empty keys, duplicate keys, invalid UTF-8 and non-finite
// floats.
func (m Metadata) Validate() error {
	seen := make(map[string]struct{}, len(m))
	for _, e := range m {
		if e.Key == "" {
			return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidMetadata.Message, fmt.Errorf("empty key"))
		}
		if !utf8.ValidString(e.Key) {
			return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidMetadata.Message, fmt.Errorf("key %q is not valid utf-8", e.Key))
		}
		if e.Value.Kind == KindString && !utf8.ValidString(e.Value.Str) {
			return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidMetadata.Message, fmt.Errorf("value for %q is not valid utf-8", e.Key))
		}
		if _, dup := seen[e.Key]; dup {
			return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidMetadata.Message, fmt.Errorf("duplicate key %q", e.Key))
		}
		seen[e.Key] = struct{}{}
		if e.Value.Kind == KindFloat && (math.IsNaN(e.Value.Float) || math.IsInf(e.Value.Float, 0)) {
			return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidMetadata.Message, fmt.Errorf("non-finite float for %q", e.Key))
		}
		switch e.Value.Kind {
		case KindString, KindInt, KindFloat, KindBool, KindNull:
		default:
			return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidMetadata.Message, fmt.Errorf("unknown kind %q", e.Value.Kind))
		}
	}
	return nil
}

type metadataWire struct {
	Key   string          `json:"key"`
	Type  ValueKind       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes metadata as a typed array:
// [{"key":"page","type":"int","value":3}]
func (m Metadata) MarshalJSON() ([]byte, error) {
	wire := make([]metadataWire, 0, len(m))
	for _, e := range m {
		raw, err := json.Marshal(e.Value.Interface())
		if err != nil {
			return nil, err
		}
		wire = append(wire, metadataWire{Key: e.Key, Type: e.Value.Kind, Value: raw})
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the typed array produced by MarshalJSON.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}
	var wire []metadataWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(Metadata, 0, len(wire))
	for _, w := range wire {
		v, err := decodeValue(w.Type, w.Value)
		if err != nil {
			return fmt.Errorf("metadata key %q: %w", w.Key, err)
		}
		out = append(out, MetadataEntry{Key: w.Key, Value: v})
	}
	*m = out
	return nil
}

func decodeValue(kind ValueKind, raw json.RawMessage) (Value, error) {
	switch kind {
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case KindInt:
		i, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
		if err != nil {
			return Value{}, err
		}
		return IntValue(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case KindNull:
		return NullValue(), nil
	default:
		return Value{}, fmt.Errorf("unknown value type %q", kind)
	}
}

// EncodeMetadata serializes metadata for a TEXT column.
func EncodeMetadata(m Metadata) (string, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMetadata parses a TEXT column written by EncodeMetadata.
func DecodeMetadata(s string) (Metadata, error) {
	var m Metadata
	if s == "" {
		return Metadata{}, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = Metadata{}
	}
	return m, nil
}
