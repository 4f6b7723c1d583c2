package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// keySeparator delimits segments of an auto-generated cache key.
const keySeparator = "::"

// SerializeCall builds a deterministic cache key from an operation name
// and its arguments. Maps are serialized with sorted keys so the same
// logical call always produces the same key across runs.
func SerializeCall(operation string, args ...any) string {
	if len(args) == 0 {
		return operation
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, operation)
	for _, arg := range args {
		parts = append(parts, serializeValue(arg))
	}
	return strings.Join(parts, keySeparator)
}

func serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return serializeValue(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "[]"
		}
		elems := make([]string, rv.Len())
		for i := range elems {
			elems[i] = serializeValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(elems, ",") + "]"

	case reflect.Map:
		if rv.IsNil() {
			return "{}"
		}
		pairs := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, serializeValue(iter.Key().Interface())+"="+serializeValue(iter.Value().Interface()))
		}
		sort.Strings(pairs)
		return "{" + strings.Join(pairs, ",") + "}"

	case reflect.Struct:
		rt := rv.Type()
		fields := make([]string, 0, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}
			fields = append(fields, f.Name+":"+serializeValue(rv.Field(i).Interface()))
		}
		return "(" + strings.Join(fields, ",") + ")"

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return fmt.Sprintf("%v", v)

	case reflect.Func, reflect.Chan:
		return fmt.Sprintf("%s:%p", rv.Kind(), v)
	}

	// Fallback for anything else
	data, err := json.Marshal(v)
	if err != nil {
		return "opaque:" + reflect.TypeOf(v).String()
	}
	return string(data)
}
