package bus

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Sanitize rewrites v into a form that survives JSON encoding across a
// context boundary. It is total: any input yields a structurally valid
// result, and a value that is already transport-safe is returned
// unchanged. Unencodable pieces degrade field by field; a bad leaf
// never poisons its container.
func Sanitize(v any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("[unserializable: %v]", r)
		}
	}()
	if v == nil {
		return nil
	}
	// json.Marshal rejects funcs, channels, non-finite floats and
	// cyclic values; a round trip that reproduces v structurally
	// proves it is already safe. An error value marshals to {} without
	// failing, so a marshal-only probe is not enough.
	if b, err := json.Marshal(v); err == nil {
		var rt any
		if json.Unmarshal(b, &rt) == nil && reflect.DeepEqual(v, rt) {
			return v
		}
	}
	return sanitizeValue(reflect.ValueOf(v), map[uintptr]bool{})
}

func sanitizeValue(v reflect.Value, seen map[uintptr]bool) any {
	if !v.IsValid() {
		return nil
	}
	if v.CanInterface() {
		if err, ok := v.Interface().(error); ok && err != nil {
			return errorShape(err)
		}
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprintf("[non-finite number: %v]", f)
		}
		return f
	case reflect.String:
		return v.String()
	case reflect.Func:
		return "[function]"
	case reflect.Chan:
		return fmt.Sprintf("[unserializable: %s]", v.Type())
	case reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return fmt.Sprintf("[unserializable: %s]", v.Type())
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return sanitizeValue(v.Elem(), seen)
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		p := v.Pointer()
		if seen[p] {
			return "[cycle]"
		}
		seen[p] = true
		defer delete(seen, p)
		return sanitizeValue(v.Elem(), seen)
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		p := v.Pointer()
		if seen[p] {
			return "[cycle]"
		}
		seen[p] = true
		defer delete(seen, p)
		return sanitizeSeq(v, seen)
	case reflect.Array:
		return sanitizeSeq(v, seen)
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		p := v.Pointer()
		if seen[p] {
			return "[cycle]"
		}
		seen[p] = true
		defer delete(seen, p)
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = sanitizeValue(iter.Value(), seen)
		}
		return out
	case reflect.Struct:
		t := v.Type()
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("json"); ok {
				if tag == "-" {
					continue
				}
				if n := jsonTagName(tag); n != "" {
					name = n
				}
			}
			out[name] = sanitizeValue(v.Field(i), seen)
		}
		return out
	default:
		return fmt.Sprintf("[unserializable: %s]", v.Type())
	}
}

func sanitizeSeq(v reflect.Value, seen map[uintptr]bool) []any {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = sanitizeValue(v.Index(i), seen)
	}
	return out
}

// errorShape flattens an error into the {name, message, stack} shape
// the UI layer expects when it renders a failure.
func errorShape(err error) map[string]any {
	return map[string]any{
		"name":    reflect.TypeOf(err).String(),
		"message": err.Error(),
		"stack":   fmt.Sprintf("%+v", err),
	}
}

func jsonTagName(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}
