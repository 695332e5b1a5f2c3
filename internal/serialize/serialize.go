// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

// Package serialize converts arbitrary entity field values into JSON-safe
// primitives for durable audit records.
//
// Value is a total function: no input causes an error or a panic.
// Unrepresentable values degrade to their string form. Entity references are
// flattened to their string representation rather than their object graph,
// which cuts back-reference cycles and keeps binary payloads out of audit
// text.
package serialize

import (
	"fmt"
	"reflect"
	"time"

	"github.com/goccy/go-json"
)

// maxDepth bounds recursion into nested containers. Raw maps and slices can
// reference themselves; container values past the bound collapse to
// maxDepthPlaceholder.
const maxDepth = 32

// maxDepthPlaceholder replaces container values at the recursion bound.
const maxDepthPlaceholder = "<max depth>"

// EntityRef is implemented by persistable domain entities. Referenced
// entities serialize as their string form, never their field graph.
type EntityRef interface {
	PrimaryKey() int64
}

// FileRef is implemented by file-backed field values (uploads, attachments).
// Such values serialize as the stored file's logical name.
type FileRef interface {
	FileName() string
}

// Value converts v into a JSON-safe primitive, applying the rules
// recursively:
//
//   - numbers, booleans, strings, nil pass through unchanged
//   - time values become ISO-8601 strings
//   - FileRef values become the stored file's name, else their string form
//   - EntityRef values become their string representation
//   - sequences and mappings recurse element-wise, preserving order
//   - everything else becomes fmt.Sprint(v)
//
// Containers nested past the depth bound collapse to a placeholder string,
// so self-referential containers terminate.
func Value(v any) any {
	return value(v, 0)
}

func value(v any, depth int) any {
	if v == nil {
		return nil
	}
	if depth > maxDepth {
		return capped(v)
	}

	// Capability checks come before kind dispatch so that entity and file
	// references never fall through to container recursion.
	switch ref := v.(type) {
	case FileRef:
		if name := ref.FileName(); name != "" {
			return name
		}
		return fmt.Sprint(v)
	case EntityRef:
		return fmt.Sprint(ref)
	}

	switch tv := v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return tv
	case time.Time:
		return tv.Format(time.RFC3339Nano)
	case *time.Time:
		if tv == nil {
			return nil
		}
		return tv.Format(time.RFC3339Nano)
	case time.Duration:
		return tv.String()
	case []byte:
		// Raw binary has no place in audit text.
		return fmt.Sprintf("<%d bytes>", len(tv))
	case []any:
		out := make([]any, len(tv))
		for i, elem := range tv {
			out[i] = value(elem, depth+1)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, elem := range tv {
			out[k] = value(elem, depth+1)
		}
		return out
	}

	return reflected(v, depth)
}

// reflected handles container kinds not covered by the concrete type switch,
// so that typed slices and maps ([]string, map[string]int, ...) still recurse.
func reflected(v any, depth int) any {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		// Dereferencing counts against the depth bound: a pointer can
		// reference its own cell.
		return value(rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = value(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = value(iter.Value().Interface(), depth+1)
		}
		return out
	}

	return fmt.Sprint(v)
}

// capped degrades a value at the recursion bound. Container kinds get a
// fixed placeholder: fmt walks maps and slices without cycle detection, so
// handing it a self-referential container would overflow the stack.
func capped(v any) any {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map,
		reflect.Pointer, reflect.Interface, reflect.Struct:
		return maxDepthPlaceholder
	}
	return fmt.Sprint(v)
}

// Equal reports whether two field values serialize to the same JSON form.
// Used by the change detector to build sparse diffs.
func Equal(a, b any) bool {
	return string(marshal(Value(a))) == string(marshal(Value(b)))
}

// marshal encodes a serialized value for comparison. Map keys are emitted in
// sorted order, so equal mappings compare equal regardless of iteration
// order. Encoding a Value result cannot fail; the fallback keeps Equal total.
func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprint(v))
	}
	return data
}
