package cache

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// DefaultMaxArgLength is the longest serialized argument kept verbatim in a key.
const DefaultMaxArgLength = 256

// SerializerOption customises the default key serializer.
type SerializerOption func(*defaultKeySerializer)

// WithMaxArgLength sets the length above which a serialized argument is replaced by its
// xxhash digest. Zero or less keeps every argument verbatim.
func WithMaxArgLength(n int) SerializerOption {
	return func(s *defaultKeySerializer) {
		s.maxArgLength = n
	}
}

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Function and channel arguments are identified by pointer, so keys built from them are
// only stable within one process. Oversized arguments are digested to bound key length.
type defaultKeySerializer struct {
	maxArgLength int
}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer(opts ...SerializerOption) KeySerializer {
	s := &defaultKeySerializer{maxArgLength: DefaultMaxArgLength}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SerializeKey builds a cache key from method name and args using reflection.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	var b strings.Builder
	b.WriteString(method)
	for _, arg := range args {
		b.WriteString(KeySeparator)
		b.WriteString(s.digest(s.serializeValue(arg)))
	}

	return b.String()
}

func (s *defaultKeySerializer) digest(part string) string {
	if s.maxArgLength <= 0 || len(part) <= s.maxArgLength {
		return part
	}
	return "xx:" + strconv.FormatUint(xxhash.Sum64String(part), 16)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	// Types such as time.Time or uuid.UUID carry their identity in unexported fields.
	if tm, ok := v.(encoding.TextMarshaler); ok {
		if rv := reflect.ValueOf(v); rv.Kind() != reflect.Ptr || !rv.IsNil() {
			if text, err := tm.MarshalText(); err == nil {
				return string(text)
			}
		}
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Func:
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return "slice" + s.serializeElems(rv)
	case reflect.Array:
		return "array" + s.serializeElems(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeElems(rv reflect.Value) string {
	n := rv.Len()
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("[%d]:{%s}", n, strings.Join(parts, ","))
}

// serializeMap sorts entries by their serialized key so iteration order never leaks into keys.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.serializeValue(iter.Key().Interface())+"="+s.serializeValue(iter.Value().Interface()))
	}
	sort.Strings(pairs)

	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s *defaultKeySerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(rv.Field(i).Interface()))
	}

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}
