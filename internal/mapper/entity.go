package mapper

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cast"

	"github.com/hackportal/hackportal-backend/internal/uow"
)

var timeType = reflect.TypeFor[time.Time]()

// decode builds an entity from a result record. Columns missing from the
// record (projections) keep their zero value; unknown columns are ignored.
func decode[T any](s schema, rec uow.Record) (*T, error) {
	entity := new(T)
	root := reflect.ValueOf(entity).Elem()
	for _, col := range s.columns {
		raw, ok := rec[col.name]
		if !ok {
			continue
		}
		if err := assign(root.FieldByIndex(col.index), raw); err != nil {
			return nil, fmt.Errorf("mapper: column %s: %w", col.name, err)
		}
	}
	return entity, nil
}

func assign(field reflect.Value, raw any) error {
	if raw == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if field.Kind() == reflect.Pointer {
		target := reflect.New(field.Type().Elem())
		if err := assign(target.Elem(), raw); err != nil {
			return err
		}
		field.Set(target)
		return nil
	}

	src := reflect.ValueOf(raw)
	if src.Type().AssignableTo(field.Type()) {
		field.Set(src)
		return nil
	}

	var (
		value any
		err   error
	)
	switch {
	case field.Type() == timeType:
		value, err = cast.ToTimeE(raw)
	case field.Kind() == reflect.String:
		value, err = cast.ToStringE(raw)
	case field.Kind() == reflect.Bool:
		value, err = cast.ToBoolE(raw)
	case field.CanInt():
		value, err = cast.ToInt64E(raw)
	case field.CanUint():
		value, err = cast.ToUint64E(raw)
	case field.CanFloat():
		value, err = cast.ToFloat64E(raw)
	default:
		return fmt.Errorf("cannot assign %T to %s", raw, field.Type())
	}
	if err != nil {
		return err
	}
	field.Set(reflect.ValueOf(value).Convert(field.Type()))
	return nil
}

// value returns the driver value of col on entity; nil pointers become NULL.
func value[T any](entity *T, col column) any {
	field := reflect.ValueOf(entity).Elem().FieldByIndex(col.index)
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return nil
		}
		return field.Elem().Interface()
	}
	return field.Interface()
}

func setValue[T any](entity *T, col column, v any) error {
	return assign(reflect.ValueOf(entity).Elem().FieldByIndex(col.index), v)
}
