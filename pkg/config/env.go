package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "NIX_INSTALLER_"

// EnvName returns the variable overriding the setting with JSON name name.
func EnvName(prefix, name string) string {
	return prefix + strings.ToUpper(name)
}

// ApplyEnv overrides fields of the struct out points to from environment
// variables named prefix + upper-cased JSON name. Fields of embedded structs
// are included; named struct fields are not. Lists are comma separated.
// The names of the applied settings are returned.
func ApplyEnv(out any, prefix string, lookup func(string) (string, bool)) ([]string, error) {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("ApplyEnv needs a pointer to a struct, got %T", out)
	}

	var applied []string
	var errs ValidationErrors
	walkFields(v.Elem(), func(name string, field reflect.Value) {
		env := EnvName(prefix, name)
		raw, ok := lookup(env)
		if !ok {
			return
		}
		if err := setFromString(field, raw); err != nil {
			errs = append(errs, ValidationError{Path: name, Message: fmt.Sprintf("%s: %v", env, err)})
			return
		}
		applied = append(applied, name)
	})

	if len(errs) > 0 {
		return applied, errs
	}
	return applied, nil
}

// walkFields calls fn for each settable field with a JSON name, descending
// into embedded structs.
func walkFields(v reflect.Value, fn func(name string, field reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		// Exported fields of an unexported embedded struct are still settable.
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && name == "" {
			walkFields(v.Field(i), fn)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" || sf.Type.Kind() == reflect.Struct {
			continue
		}
		fn(name, v.Field(i))
	}
}

func setFromString(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list type %s", field.Type())
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		list := reflect.MakeSlice(field.Type(), len(items), len(items))
		for i, item := range items {
			list.Index(i).SetString(item)
		}
		field.Set(list)
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}
