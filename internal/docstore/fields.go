package docstore

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// millisThreshold separates epoch seconds from epoch milliseconds in raw
// numeric timestamps. 1e11 seconds is far beyond any realistic date.
const millisThreshold = 1e11

// String returns the string value of key, or "".
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Bool returns the bool value of key, or false.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Int returns key as an int64, accepting any numeric representation.
func (f Fields) Int(key string) (int64, bool) {
	return ToInt(f[key])
}

// Float returns key as a float64, accepting any numeric representation.
func (f Fields) Float(key string) (float64, bool) {
	return ToFloat(f[key])
}

// Time returns key as a time.Time. See ToTime for the accepted shapes.
func (f Fields) Time(key string) (time.Time, bool) {
	return ToTime(f[key])
}

// Has reports whether key is present and non-nil.
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	return ok && v != nil
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return cloneValue(map[string]interface{}(f)).(map[string]interface{})
}

// Merge copies every key of src over f and returns f.
func (f Fields) Merge(src Fields) Fields {
	for k, v := range src {
		f[k] = v
	}
	return f
}

// ToInt converts a stored number to int64.
func ToInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if fl, err := n.Float64(); err == nil {
			return int64(fl), true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// ToFloat converts a stored number to float64.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		fl, err := n.Float64()
		return fl, err == nil
	}
	if i, ok := ToInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// ToTime normalizes the timestamp shapes found in stored documents:
// time.Time, *time.Time, RFC 3339 strings, {"$time": "..."} markers written
// by the Postgres adapter, {seconds, nanoseconds} maps and raw epoch numbers
// (seconds, or milliseconds when large enough).
func ToTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	case Fields:
		return ToTime(map[string]interface{}(t))
	case map[string]interface{}:
		if s, ok := t[timeMarker].(string); ok {
			return ToTime(s)
		}
		secs, ok := ToFloat(t["seconds"])
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := ToInt(t["nanoseconds"])
		return time.Unix(int64(secs), nanos), true
	}
	n, ok := ToFloat(v)
	if !ok || n <= 0 {
		return time.Time{}, false
	}
	if n >= millisThreshold {
		return time.UnixMilli(int64(n)), true
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// Slice returns key as a list of values.
func (f Fields) Slice(key string) []interface{} {
	switch s := f[key].(type) {
	case []interface{}:
		return s
	case []map[string]interface{}:
		out := make([]interface{}, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out
	case []Fields:
		out := make([]interface{}, len(s))
		for i, m := range s {
			out[i] = map[string]interface{}(m)
		}
		return out
	}
	return nil
}

// AsFields converts a nested map value to Fields.
func AsFields(v interface{}) (Fields, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return Fields(m), true
	case Fields:
		return m, true
	}
	return nil, false
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Fields:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []Fields:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}

// equalValues compares a stored value with a filter value, tolerating the
// numeric type differences between adapters.
func equalValues(stored, want interface{}) bool {
	switch s := stored.(type) {
	case nil:
		return want == nil
	case string:
		w, ok := want.(string)
		return ok && s == w
	case bool:
		w, ok := want.(bool)
		return ok && s == w
	}
	if _, isStr := want.(string); isStr {
		return false
	}
	a, ok := ToFloat(stored)
	if !ok {
		return false
	}
	b, ok := ToFloat(want)
	return ok && a == b
}
