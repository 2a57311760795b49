package cache

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Stored values are a gob stream of envelope, base64 encoded so the column
// stays a plain string on every backend.
//
// Gob keeps the concrete type of V but not everything about its shape: empty
// slices and maps decode as nil, zero pointers in struct fields are dropped
// and a pointer stored behind an interface decodes as the value it points
// to. Marks record where that happened so decodeValue can put it back.
type envelope struct {
	V     any
	Marks []mark
}

type markKind uint8

const (
	// a non-nil slice or map that was empty
	markEmpty markKind = iota + 1
	// a non-nil pointer to a zero value
	markZeroPtr
	// an interface holding a pointer
	markBoxed
)

// mark addresses a position inside V by struct field names, slice indexes
// and %#v formatted map keys.
type mark struct {
	Path []string
	Kind markKind
}

var gobEncoderType = reflect.TypeOf((*gob.GobEncoder)(nil)).Elem()

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]map[string]any{})
	gob.Register(map[string]string{})
	gob.Register(map[string]int{})
	gob.Register(map[string]int64{})
	gob.Register(map[string]float64{})
	gob.Register(map[string]bool{})
	gob.Register(map[string][]string{})
	gob.Register(time.Time{})
	gob.Register(time.Duration(0))
}

// Register records a concrete type that will be stored behind any, e.g. a
// struct passed to Set. Basic types, their slices, map[string]any, []any,
// the common map[string]T maps and time.Time need no registration.
func Register(value any) {
	gob.Register(value)
}

func encodeValue(value any) (string, error) {
	env := envelope{
		V:     value,
		Marks: collectMarks(reflect.ValueOf(&value).Elem(), nil, nil),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&env); err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeValue(data string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	v := reflect.ValueOf(&env.V).Elem()
	for _, m := range env.Marks {
		v.Set(restore(v, m.Path, m.Kind))
	}
	return env.V, nil
}

func collectMarks(v reflect.Value, path []string, marks []mark) []mark {
	if v.Kind() != reflect.Interface && hasCustomEncoding(v.Type()) {
		return marks
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return marks
		}
		elem := v.Elem()
		if elem.Kind() == reflect.Pointer {
			if elem.IsNil() {
				return marks
			}
			marks = append(marks, newMark(path, markBoxed))
			elem = elem.Elem()
		}
		return collectMarks(elem, path, marks)
	case reflect.Pointer:
		if v.IsNil() {
			return marks
		}
		if v.Elem().IsZero() {
			return append(marks, newMark(path, markZeroPtr))
		}
		return collectMarks(v.Elem(), path, marks)
	case reflect.Slice:
		if v.IsNil() {
			return marks
		}
		if v.Len() == 0 {
			return append(marks, newMark(path, markEmpty))
		}
		if !mayNest(v.Type().Elem()) {
			return marks
		}
		for i := 0; i < v.Len(); i++ {
			marks = collectMarks(v.Index(i), append(path, strconv.Itoa(i)), marks)
		}
	case reflect.Array:
		if !mayNest(v.Type().Elem()) {
			return marks
		}
		for i := 0; i < v.Len(); i++ {
			marks = collectMarks(v.Index(i), append(path, strconv.Itoa(i)), marks)
		}
	case reflect.Map:
		if v.IsNil() {
			return marks
		}
		if v.Len() == 0 {
			return append(marks, newMark(path, markEmpty))
		}
		if !mayNest(v.Type().Elem()) {
			return marks
		}
		iter := v.MapRange()
		for iter.Next() {
			marks = collectMarks(iter.Value(), append(path, mapKey(iter.Key())), marks)
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			marks = collectMarks(v.Field(i), append(path, t.Field(i).Name), marks)
		}
	}
	return marks
}

// restore returns v with the mark at path applied. Positions that no longer
// match the decoded shape are left alone.
func restore(v reflect.Value, path []string, kind markKind) reflect.Value {
	if len(path) == 0 {
		return apply(v, kind)
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		return box(restore(v.Elem(), path, kind), v.Type())
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		v.Elem().Set(restore(v.Elem(), path, kind))
		return v
	}

	head, rest := path[0], path[1:]
	switch v.Kind() {
	case reflect.Slice:
		i, err := strconv.Atoi(head)
		if err != nil || i >= v.Len() {
			return v
		}
		v.Index(i).Set(restore(v.Index(i), rest, kind))
	case reflect.Array:
		i, err := strconv.Atoi(head)
		if err != nil || i >= v.Len() {
			return v
		}
		out := addressable(v)
		out.Index(i).Set(restore(out.Index(i), rest, kind))
		return out
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if mapKey(iter.Key()) == head {
				v.SetMapIndex(iter.Key(), restore(iter.Value(), rest, kind))
				break
			}
		}
	case reflect.Struct:
		out := addressable(v)
		field := out.FieldByName(head)
		if !field.IsValid() || !field.CanSet() {
			return v
		}
		field.Set(restore(field, rest, kind))
		return out
	}
	return v
}

func apply(v reflect.Value, kind markKind) reflect.Value {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v
		}
		if kind == markBoxed {
			ptr := reflect.New(v.Elem().Type())
			ptr.Elem().Set(v.Elem())
			return box(ptr, v.Type())
		}
		return box(apply(v.Elem(), kind), v.Type())
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			if kind == markZeroPtr {
				return reflect.New(v.Type().Elem())
			}
			return v
		}
		if kind == markEmpty {
			v.Elem().Set(apply(v.Elem(), kind))
		}
	case reflect.Slice:
		if kind == markEmpty && v.IsNil() {
			return reflect.MakeSlice(v.Type(), 0, 0)
		}
	case reflect.Map:
		if kind == markEmpty && v.IsNil() {
			return reflect.MakeMap(v.Type())
		}
	}
	return v
}

func box(v reflect.Value, iface reflect.Type) reflect.Value {
	out := reflect.New(iface).Elem()
	out.Set(v)
	return out
}

func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	out := reflect.New(v.Type()).Elem()
	out.Set(v)
	return out
}

func newMark(path []string, kind markKind) mark {
	return mark{Path: append([]string(nil), path...), Kind: kind}
}

func mapKey(k reflect.Value) string {
	return fmt.Sprintf("%#v", k.Interface())
}

// mayNest reports whether values of t can contain a position gob loses.
func mayNest(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return !hasCustomEncoding(t)
	}
	return false
}

func hasCustomEncoding(t reflect.Type) bool {
	return t.Implements(gobEncoderType) || reflect.PointerTo(t).Implements(gobEncoderType)
}
