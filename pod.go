package gpgpu

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

// podCache maps reflect.Type to the type's size, or to a string
// explaining why the type is not plain data.
var podCache sync.Map

// elemSize returns sizeof(T). It panics if T is not plain data: device
// memory holds raw bytes, so T must not contain pointers, slices, maps,
// strings, interfaces, channels, funcs or bools, must not be zero-sized,
// and structs must spell out their padding as blank fields.
func elemSize[T any]() int {
	t := reflect.TypeFor[T]()
	if v, ok := podCache.Load(t); ok {
		if size, ok := v.(int); ok {
			return size
		}
		panic(v)
	}

	reason := notPOD(t)
	if reason == "" && t.Size() == 0 {
		reason = "zero-sized"
	}
	if reason != "" {
		msg := fmt.Sprintf("gpgpu: element type %v is not plain data: %s", t, reason)
		podCache.Store(t, msg)
		panic(msg)
	}
	size := int(t.Size())
	podCache.Store(t, size)
	return size
}

// notPOD returns why t cannot live in device memory, or "".
func notPOD(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return ""
	case reflect.Array:
		return notPOD(t.Elem())
	case reflect.Struct:
		var sum uintptr
		for i := range t.NumField() {
			f := t.Field(i)
			if r := notPOD(f.Type); r != "" {
				return fmt.Sprintf("field %s: %s", f.Name, r)
			}
			sum += f.Type.Size()
		}
		if sum != t.Size() {
			return fmt.Sprintf("%d bytes of implicit padding", t.Size()-sum)
		}
		return ""
	case reflect.Bool:
		return "bool has no fixed device representation"
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return "platform-sized " + t.Kind().String()
	default:
		return "contains " + t.Kind().String()
	}
}

// asBytes views s as raw bytes without copying.
func asBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*elemSize[T]())
}

// fromBytes copies b into a new []T of len(b)/sizeof(T) elements.
func fromBytes[T any](b []byte) []T {
	n := len(b) / elemSize[T]()
	out := make([]T, n)
	copy(asBytes(out), b)
	return out
}
