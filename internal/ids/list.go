package ids

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Shape records how an identifier list was represented when it was read.
type Shape int

const (
	ShapeNone   Shape = iota // null or absent
	ShapeString              // bare string or comma-joined string
	ShapeNumber              // bare number
	ShapeArray               // JSON array
)

func (s Shape) String() string {
	switch s {
	case ShapeString:
		return "string"
	case ShapeNumber:
		return "number"
	case ShapeArray:
		return "array"
	default:
		return "none"
	}
}

// List is a raw identifier list that keeps its original representation, so
// writing it back after a single add or remove does not change its type.
type List struct {
	shape   Shape
	numeric bool
	ids     []string
}

// NewArray builds an array-shaped list. Elements are encoded as numbers when
// every id is an integer.
func NewArray(values ...any) List {
	list := flatten(values)
	return List{shape: ShapeArray, numeric: allNumeric(list), ids: list}
}

// NewString builds a comma-joined string list.
func NewString(values ...any) List {
	return List{shape: ShapeString, ids: flatten(values)}
}

// flatten normalizes each value on its own so comma-joined strings split.
func flatten(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, Normalize(v)...)
	}
	return out
}

// ParseList wraps a decoded value (string, number, slice, nil) as a List.
func ParseList(v any) List {
	switch t := v.(type) {
	case List:
		return t
	case nil:
		return List{}
	case string:
		return List{shape: ShapeString, ids: Normalize(t)}
	case []any:
		numeric := len(t) > 0
		for _, e := range t {
			switch e.(type) {
			case float64, int, int64, json.Number:
			default:
				numeric = false
			}
		}
		return List{shape: ShapeArray, numeric: numeric, ids: Normalize(t)}
	case []int, []int64, []float64:
		return List{shape: ShapeArray, numeric: true, ids: Normalize(t)}
	case []string:
		return List{shape: ShapeArray, ids: Normalize(t)}
	}
	if s, ok := scalarString(v); ok {
		return List{shape: ShapeNumber, ids: appendScalar(nil, s)}
	}
	return List{}
}

// Shape reports the representation of the list.
func (l List) Shape() Shape { return l.shape }

// IDs returns a copy of the normalized ids.
func (l List) IDs() []string {
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}

// Len returns the number of ids, duplicates included.
func (l List) Len() int { return len(l.ids) }

// Contains reports whether id is present under loose equality.
func (l List) Contains(id any) bool { return Contains(l.ids, id) }

// Without returns the list with every occurrence of id removed.
func (l List) Without(id any) List {
	key := Key(id)
	out := List{shape: l.shape, numeric: l.numeric, ids: make([]string, 0, len(l.ids))}
	for _, v := range l.ids {
		if v != key {
			out.ids = append(out.ids, v)
		}
	}
	return out
}

// With returns the list with id appended. A bare number that gains a second
// id becomes an array of numbers; an absent list becomes an array.
func (l List) With(id any) List {
	key := Key(id)
	if key == "" {
		return l
	}
	out := List{shape: l.shape, numeric: l.numeric, ids: append(l.IDs(), key)}
	switch l.shape {
	case ShapeNone:
		out.shape = ShapeArray
		out.numeric = isNumeric(key)
	case ShapeNumber:
		if len(l.ids) == 0 {
			out.numeric = isNumeric(key)
			break
		}
		out.shape = ShapeArray
		out.numeric = allNumeric(out.ids)
	case ShapeArray:
		out.numeric = (l.numeric || len(l.ids) == 0) && isNumeric(key)
	}
	return out
}

// Replace returns a list of the same shape holding values.
func (l List) Replace(values any) List {
	out := List{shape: l.shape, ids: Normalize(values)}
	switch l.shape {
	case ShapeNone:
		out.shape = ShapeArray
		out.numeric = allNumeric(out.ids)
	case ShapeNumber:
		if len(out.ids) > 1 {
			out.shape = ShapeArray
			out.numeric = allNumeric(out.ids)
		}
	case ShapeArray:
		out.numeric = (l.numeric || len(l.ids) == 0) && allNumeric(out.ids)
	}
	return out
}

// Value converts the list back into the plain value it was decoded from.
func (l List) Value() any {
	switch l.shape {
	case ShapeString:
		return strings.Join(l.ids, ",")
	case ShapeNumber:
		if len(l.ids) == 0 {
			return nil
		}
		if n, err := strconv.ParseInt(l.ids[0], 10, 64); err == nil {
			return n
		}
		return l.ids[0]
	case ShapeArray:
		out := make([]any, 0, len(l.ids))
		for _, id := range l.ids {
			if l.numeric {
				if n, err := strconv.ParseInt(id, 10, 64); err == nil {
					out = append(out, n)
					continue
				}
			}
			out = append(out, id)
		}
		return out
	default:
		return nil
	}
}

func (l List) String() string { return strings.Join(l.ids, ",") }

// MarshalJSON encodes the list in its original representation.
func (l List) MarshalJSON() ([]byte, error) {
	if l.shape == ShapeNumber && len(l.ids) == 1 && isNumeric(l.ids[0]) {
		return []byte(l.ids[0]), nil
	}
	return json.Marshal(l.Value())
}

// UnmarshalJSON accepts null, a string, a number or an array.
func (l *List) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = List{}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode id list: %w", err)
	}

	switch t := raw.(type) {
	case string, json.Number:
		*l = ParseList(t)
	case []any:
		*l = ParseList(t)
	default:
		return fmt.Errorf("decode id list: unsupported value %s", string(trimmed))
	}
	return nil
}

func isNumeric(id string) bool {
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}

func allNumeric(list []string) bool {
	if len(list) == 0 {
		return false
	}
	for _, id := range list {
		if !isNumeric(id) {
			return false
		}
	}
	return true
}
