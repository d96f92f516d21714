package record

import (
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/hashcache/codec"
)

// ErrMissingField is returned by Unmarshal when a mapped field is absent.
var ErrMissingField = errors.New("record: missing field")

// TagName is the struct tag read by Marshal and Unmarshal.
//
//	type User struct {
//	    ID    uint64            `cache:"id"`
//	    Name  string            // stored as "Name"
//	    Roles []string          `cache:"roles,json"`
//	    Debug bool              `cache:"-"`
//	}
const TagName = "cache"

type fieldPlan struct {
	name  string
	index []int
	codec codec.Codec
	proto bool
}

var plans sync.Map // reflect.Type -> []fieldPlan

// Marshal maps the exported fields of a struct (or pointer to struct) to a
// Record in declaration order.
func Marshal(v any) (Record, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, errors.New("record: Marshal(nil)")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.Wrapf(ErrUnsupported, "Marshal(%s)", rv.Type())
	}
	fields, err := planFor(rv.Type())
	if err != nil {
		return nil, err
	}

	out := make(Record, 0, len(fields))
	for _, f := range fields {
		fv := rv.FieldByIndex(f.index)
		var s string
		if f.codec != nil {
			b, err := f.codec.Encode(fv.Interface())
			if err != nil {
				return nil, errors.Wrapf(err, "record: encode field %q", f.name)
			}
			s = string(b)
		} else {
			s, err = formatValue(fv)
			if err != nil {
				return nil, errors.Wrapf(err, "record: field %q", f.name)
			}
		}
		out = append(out, Field{Name: f.name, Value: s})
	}
	return out, nil
}

// Unmarshal fills the struct pointed to by v from r. Every mapped field must
// be present and parse into its Go type.
func Unmarshal(r Record, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("record: Unmarshal needs a non-nil pointer")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return errors.Wrapf(ErrUnsupported, "Unmarshal(%s)", rv.Type())
	}
	fields, err := planFor(rv.Type())
	if err != nil {
		return err
	}

	for _, f := range fields {
		s, ok := r.Get(f.name)
		if !ok {
			return errors.Wrapf(ErrMissingField, "%q", f.name)
		}
		fv := rv.FieldByIndex(f.index)
		switch {
		case f.proto:
			m := reflect.New(fv.Type().Elem())
			if err := f.codec.Decode([]byte(s), m.Interface()); err != nil {
				return errors.Wrapf(err, "record: decode field %q", f.name)
			}
			fv.Set(m)
		case f.codec != nil:
			if err := f.codec.Decode([]byte(s), fv.Addr().Interface()); err != nil {
				return errors.Wrapf(err, "record: decode field %q", f.name)
			}
		default:
			if err := parseInto(s, fv); err != nil {
				return errors.Wrapf(err, "record: parse field %q", f.name)
			}
		}
	}
	return nil
}

func planFor(t reflect.Type) ([]fieldPlan, error) {
	if p, ok := plans.Load(t); ok {
		return p.([]fieldPlan), nil
	}
	p, err := buildPlan(t, nil)
	if err != nil {
		return nil, err
	}
	plans.Store(t, p)
	return p, nil
}

func buildPlan(t reflect.Type, parent []int) ([]fieldPlan, error) {
	var out []fieldPlan
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		index := append(append([]int(nil), parent...), i)

		// untagged embedded structs are flattened, like encoding/json
		if sf.Anonymous && tag == "" && sf.Type.Kind() == reflect.Struct {
			inner, err := buildPlan(sf.Type, index)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
			continue
		}
		if !sf.IsExported() {
			continue
		}

		name, opt, _ := strings.Cut(tag, ",")
		if name == "" {
			name = sf.Name
		}
		fp := fieldPlan{name: name, index: index}
		if opt != "" {
			c, err := codec.ByName(opt)
			if err != nil {
				return nil, errors.Wrapf(err, "record: field %s.%s", t.Name(), sf.Name)
			}
			fp.codec = c
			fp.proto = opt == "proto"
			if fp.proto && sf.Type.Kind() != reflect.Pointer {
				return nil, errors.Newf("record: field %s.%s: proto fields must be message pointers", t.Name(), sf.Name)
			}
		}
		out = append(out, fp)
	}
	return out, nil
}
