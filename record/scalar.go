package record

import (
	"encoding"
	"reflect"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrUnsupported is returned for values that have no lossless string form.
var ErrUnsupported = errors.New("record: unsupported type")

// Scalar lists the kinds Parse can produce.
type Scalar interface {
	~string | ~bool |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Format converts a scalar value to its record string.
func Format(v any) (string, error) {
	if v == nil {
		return "", errors.Wrap(ErrUnsupported, "nil value")
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return formatValue(reflect.ValueOf(v))
}

// Parse converts a record string back into T.
func Parse[T Scalar](s string) (T, error) {
	var out T
	err := parseInto(s, reflect.ValueOf(&out).Elem())
	return out, err
}

func formatValue(v reflect.Value) (string, error) {
	t := v.Type()
	if t == durationType {
		return time.Duration(v.Int()).String(), nil
	}
	if t.Implements(textMarshalerType) {
		if t.Kind() == reflect.Pointer && v.IsNil() {
			return "", errors.Wrapf(ErrUnsupported, "nil %s", t)
		}
		b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	switch t.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return string(v.Bytes()), nil
		}
	}
	return "", errors.Wrapf(ErrUnsupported, "%s", t)
}

// parseInto sets v (which must be settable) from s.
func parseInto(s string, v reflect.Value) error {
	t := v.Type()
	if t == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}

	switch t.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Slice:
		if t.Elem().Kind() != reflect.Uint8 {
			return errors.Wrapf(ErrUnsupported, "%s", t)
		}
		v.SetBytes([]byte(s))
	default:
		return errors.Wrapf(ErrUnsupported, "%s", t)
	}
	return nil
}
