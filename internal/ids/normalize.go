// Package ids converts the identifier shapes found in sprint and task records
// (bare scalars, comma-joined strings, arrays) into one canonical form.
package ids

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Normalize returns the ordered list of trimmed, non-empty string ids held by v.
// The result is never nil. Duplicates are kept; see Unique.
func Normalize(v any) []string {
	out := make([]string, 0)
	switch t := v.(type) {
	case nil:
		return out
	case List:
		return append(out, t.ids...)
	case *List:
		if t == nil {
			return out
		}
		return append(out, t.ids...)
	case string:
		return splitString(t)
	case []string:
		for _, s := range t {
			out = appendScalar(out, s)
		}
	case []any:
		for _, e := range t {
			if s, ok := scalarString(e); ok {
				out = appendScalar(out, s)
			}
		}
	case []int:
		for _, n := range t {
			out = append(out, strconv.Itoa(n))
		}
	case []int64:
		for _, n := range t {
			out = append(out, strconv.FormatInt(n, 10))
		}
	case []float64:
		for _, f := range t {
			out = append(out, formatFloat(f))
		}
	case []json.Number:
		for _, n := range t {
			out = appendScalar(out, n.String())
		}
	default:
		if s, ok := scalarString(t); ok {
			return appendScalar(out, s)
		}
	}
	return out
}

// Unique drops repeated ids, keeping the first occurrence of each.
func Unique(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, id := range list {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Key returns the string-normalized form of a single id, or "" when v holds none.
func Key(v any) string {
	list := Normalize(v)
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

// Equal compares two ids loosely, so 7 and "7" are the same id.
func Equal(a, b any) bool {
	ka := Key(a)
	return ka != "" && ka == Key(b)
}

// Contains reports whether list holds id under loose equality.
func Contains(list []string, id any) bool {
	key := Key(id)
	if key == "" {
		return false
	}
	for _, v := range list {
		if v == key {
			return true
		}
	}
	return false
}

// ParseInt converts a normalized id into the numeric key used by the stores.
func ParseInt(id any) (int64, error) {
	key := Key(id)
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("malformed id %q", key)
	}
	return n, nil
}

func splitString(s string) []string {
	out := make([]string, 0)
	if !strings.Contains(s, ",") {
		return appendScalar(out, s)
	}
	for _, part := range strings.Split(s, ",") {
		out = appendScalar(out, part)
	}
	return out
}

func appendScalar(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return formatFloat(float64(t)), true
	case float64:
		return formatFloat(t), true
	case json.Number:
		return t.String(), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
