package model

import (
	"database/sql/driver"
	"fmt"
)

// The status enums below are closed sets stored as lowercase strings. These
// helpers keep their text, JSON and SQL encodings in one place.

func marshalEnum[T comparable](v T, names map[T]string) ([]byte, error) {
	n, ok := names[v]
	if !ok {
		return nil, fmt.Errorf("unknown value %v", v)
	}
	return []byte(n), nil
}

func unmarshalEnum[T comparable](b []byte, dst *T, names map[T]string, kind string) error {
	s := string(b)
	for v, n := range names {
		if n == s {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown %s %q", ErrValidation, kind, s)
}

func scanEnum[T comparable](src any, dst *T, names map[T]string, kind string) error {
	switch v := src.(type) {
	case string:
		return unmarshalEnum([]byte(v), dst, names, kind)
	case []byte:
		return unmarshalEnum(v, dst, names, kind)
	case nil:
		return fmt.Errorf("%s is NULL", kind)
	default:
		return fmt.Errorf("cannot scan %T into %s", src, kind)
	}
}

func valueEnum[T comparable](v T, names map[T]string) (driver.Value, error) {
	n, ok := names[v]
	if !ok {
		return nil, fmt.Errorf("unknown value %v", v)
	}
	return n, nil
}
