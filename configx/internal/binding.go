// Package internal provides internal implementation for the configx package.
package internal

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.eggybyte.com/sysobs/core/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// BindToStruct binds configuration values to struct fields using env tags.
//
// Supported tags:
//   - env: configuration key
//   - default: value used when the key is absent
//   - unit: for time.Duration fields, the unit of bare integers ("ms" or "s");
//     values with a suffix such as "5s" are always accepted
func BindToStruct(snapshot map[string]string, target any) error {
	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.Elem().Kind() != reflect.Struct {
		return errors.New(errors.CodeInvalidArgument, "target must be a pointer to struct")
	}

	return bindStructFields(snapshot, targetValue.Elem())
}

// bindStructFields recursively binds configuration values to struct fields.
func bindStructFields(snapshot map[string]string, structValue reflect.Value) error {
	structType := structValue.Type()

	for i := 0; i < structValue.NumField(); i++ {
		field := structValue.Field(i)
		fieldType := structType.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		// Handle nested structs (embedded or regular)
		if field.Kind() == reflect.Struct {
			if err := bindStructFields(snapshot, field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		value, exists := snapshot[envTag]
		if !exists {
			value = fieldType.Tag.Get("default")
		}

		if err := setFieldValue(field, value, fieldType.Tag.Get("unit")); err != nil {
			return errors.Wrapf(errors.CodeInvalidArgument, "configx.Bind", err, "%s (%s=%q)", fieldType.Name, envTag, value)
		}
	}

	return nil
}

// setFieldValue sets a field value from a string.
func setFieldValue(field reflect.Value, value, unit string) error {
	if value == "" {
		return nil // Keep zero value
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := parseDuration(value, unit)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		intValue, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintValue, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(uintValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Float32, reflect.Float64:
		floatValue, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return errors.New(errors.CodeInvalidArgument, "unsupported slice type "+field.Type().String())
		}
		field.Set(reflect.ValueOf(ParseList(value)))
	case reflect.Map:
		if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
			return errors.New(errors.CodeInvalidArgument, "unsupported map type "+field.Type().String())
		}
		m, err := ParseLabels(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(m))
	default:
		return errors.New(errors.CodeInvalidArgument, "unsupported field type "+field.Kind().String())
	}

	return nil
}

// parseDuration accepts Go duration strings and bare integers in unit.
func parseDuration(value, unit string) (time.Duration, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.ParseDuration(value)
	}
	switch unit {
	case "ms":
		return time.Duration(n) * time.Millisecond, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	case "":
		// Bare integers without a unit are rejected below unless zero.
		if n == 0 {
			return 0, nil
		}
	}
	return 0, errors.New(errors.CodeInvalidArgument, "duration needs a unit suffix")
}

// ParseList splits "a, b,c" into trimmed, non-empty items.
func ParseList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParseLabels parses "k=v,k2=v2". Keys must be non-empty; values may be empty.
func ParseLabels(value string) (map[string]string, error) {
	labels := make(map[string]string)
	for _, pair := range ParseList(value) {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.New(errors.CodeInvalidArgument, "label "+strconv.Quote(pair)+" is not key=value")
		}
		labels[k] = strings.TrimSpace(v)
	}
	return labels, nil
}
