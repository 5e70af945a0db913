package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// KeyPrefix namespaces every key written by the service.
	KeyPrefix = "hackportal"
	// KeySeparator defines the delimiter used between cache key segments.
	KeySeparator = "::"
)

// BuildKey composes a key from a table, its generation, an operation name
// and the serialized parameters of the query.
func BuildKey(table string, generation int64, operation string, params ...any) string {
	parts := make([]string, 0, 4+len(params))
	parts = append(parts, KeyPrefix, table, "v"+strconv.FormatInt(generation, 10), operation)
	for _, p := range params {
		parts = append(parts, serializeValue(reflect.ValueOf(p)))
	}
	return strings.Join(parts, KeySeparator)
}

func generationKey(table string) string {
	return strings.Join([]string{KeyPrefix, table, "generation"}, KeySeparator)
}

var timeType = reflect.TypeOf(time.Time{})

// serializeValue renders v deterministically: pointers are dereferenced,
// map keys sorted and strings quoted so separators inside values cannot
// make two different parameter lists collide.
func serializeValue(rv reflect.Value) string {
	if !rv.IsValid() {
		return "nil"
	}
	if rv.Type() == timeType {
		return "time:" + rv.Interface().(time.Time).UTC().Format(time.RFC3339Nano)
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return serializeValue(rv.Elem())
	case reflect.String:
		return strconv.Quote(rv.String())
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return serializeList("slice", rv)
	case reflect.Array:
		return serializeList("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return serializeMap(rv)
	case reflect.Struct:
		return serializeStruct(rv)
	}
	return jsonFallback(rv)
}

func serializeList(kind string, rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = serializeValue(rv.Index(i))
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, len(parts), strings.Join(parts, ","))
}

func serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, serializeValue(iter.Key())+"="+serializeValue(iter.Value()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+serializeValue(rv.Field(i)))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func jsonFallback(rv reflect.Value) string {
	if !rv.CanInterface() {
		return "opaque:" + rv.Type().String()
	}
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return "opaque:" + rv.Type().String()
	}
	return "json:" + string(data)
}
