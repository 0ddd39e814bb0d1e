package table

import (
	"cmp"
	"encoding"
	"fmt"
	"reflect"
	"strconv"
)

// formatKey renders k as the object key used by text encodings.
//
// Keys implementing encoding.TextMarshaler use it. Otherwise strings are
// used verbatim, integers in base 10 and floats in the shortest form that
// parses back to the same value.
func formatKey[K cmp.Ordered](k K) (string, error) {
	if m, ok := any(k).(encoding.TextMarshaler); ok {
		b, err := m.MarshalText()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}

		return string(b), nil
	}

	v := reflect.ValueOf(k)

	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, v.Type().Bits()), nil
	default:
		return "", fmt.Errorf("%w: unsupported key kind %s", ErrInvalidKey, v.Kind())
	}
}

// parseKey is the inverse of formatKey.
func parseKey[K cmp.Ordered](s string) (K, error) {
	var k K

	if u, ok := any(&k).(encoding.TextUnmarshaler); ok {
		if err := u.UnmarshalText([]byte(s)); err != nil {
			return k, fmt.Errorf("%w %q: %w", ErrInvalidKey, s, err)
		}

		return k, nil
	}

	v := reflect.ValueOf(&k).Elem()

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return k, fmt.Errorf("%w %q: %w", ErrInvalidKey, s, err)
		}

		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return k, fmt.Errorf("%w %q: %w", ErrInvalidKey, s, err)
		}

		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return k, fmt.Errorf("%w %q: %w", ErrInvalidKey, s, err)
		}

		v.SetFloat(f)
	default:
		return k, fmt.Errorf("%w: unsupported key kind %s", ErrInvalidKey, v.Kind())
	}

	return k, nil
}
