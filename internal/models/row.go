package models

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ErrRowNotObject is returned when a row is not a JSON object.
var ErrRowNotObject = errors.New("row is not a JSON object")

// Row is one record of a dataset. Column order follows the source JSON object.
type Row struct {
	values map[string]any
	keys   []string
}

// NewRow builds a row from alternating column/value pairs.
func NewRow(pairs ...any) Row {
	r := Row{values: make(map[string]any, len(pairs)/2)}

	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}

		r.Set(key, pairs[i+1])
	}

	return r
}

// Keys returns the column names in order.
func (r Row) Keys() []string {
	return r.keys
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.keys)
}

// Get returns the value of a column.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]

	return v, ok
}

// Set assigns a column value, appending the column if it is new.
func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}

	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}

	r.values[key] = value
}

// UnmarshalJSON decodes a JSON object keeping its key order.
// Numbers are kept as json.Number so integers stay distinguishable.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrRowNotObject
	}

	*r = Row{values: make(map[string]any)}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected key token %v", ErrRowNotObject, tok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode column %q: %w", key, err)
		}

		r.Set(key, value)
	}

	_, err = dec.Token()

	return err
}

// AsInt64 reports whether v is an integer value and returns it.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		s := n.String()
		if strings.ContainsAny(s, ".eE") {
			return 0, false
		}

		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}

		return i, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}

	return 0, false
}

// FormatValue renders a cell value for CSV output.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "True"
		}

		return "False"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}

		return string(b)
	}
}
