// Package flatten converts nested configuration values into registry
// key/value entries.
package flatten

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/cuemby/gwsync/pkg/types"
)

// MaxDepth bounds how deeply a value may nest below the prefix
const MaxDepth = 32

// ErrTooDeep is returned when a value nests deeper than MaxDepth
var ErrTooDeep = errors.New("value nested too deeply")

// Flatten walks value and returns one entry per leaf, with the path of the
// leaf appended to prefix. Objects contribute their keys, lists their
// 0-based indexes. Booleans become "true"/"false" and nil becomes "".
func Flatten(value any, prefix ...string) ([]types.KVEntry, error) {
	var out []types.KVEntry
	path := make([]string, len(prefix), len(prefix)+8)
	copy(path, prefix)

	if err := walk(value, path, 0, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(value any, path []string, depth int, out *[]types.KVEntry) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w at %v", ErrTooDeep, path)
	}

	switch v := value.(type) {
	case *types.Object:
		for _, key := range v.Keys() {
			child, _ := v.Get(key)
			if err := walk(child, appendPath(path, key), depth+1, out); err != nil {
				return err
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := walk(v[key], appendPath(path, key), depth+1, out); err != nil {
				return err
			}
		}
	case []any:
		for i, child := range v {
			if err := walk(child, appendPath(path, strconv.Itoa(i)), depth+1, out); err != nil {
				return err
			}
		}
	case []string:
		for i, child := range v {
			*out = append(*out, types.KVEntry{Path: appendPath(path, strconv.Itoa(i)), Value: child})
		}
	default:
		*out = append(*out, types.KVEntry{Path: appendPath(path), Value: Scalar(v)})
	}
	return nil
}

// CheckDepth reports ErrTooDeep when value nests deeper than MaxDepth, using
// the same accounting as Flatten
func CheckDepth(value any) error {
	return checkDepth(value, 0)
}

func checkDepth(value any, depth int) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}

	switch v := value.(type) {
	case *types.Object:
		for _, key := range v.Keys() {
			child, _ := v.Get(key)
			if err := checkDepth(child, depth+1); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, child := range v {
			if err := checkDepth(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range v {
			if err := checkDepth(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// appendPath copies path so entries never share a backing array
func appendPath(path []string, segments ...string) []string {
	p := make([]string, 0, len(path)+len(segments))
	p = append(p, path...)
	return append(p, segments...)
}

// Scalar renders a leaf value as a registry string
func Scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
