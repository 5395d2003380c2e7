package config

import (
	"reflect"
	"strings"
)

// missingRequired returns the yaml names of dst's required:"true" fields that
// are not keys of m. Inline structs are checked against the same map.
func missingRequired(m map[string]any, dst any) []string {
	v := reflect.ValueOf(dst)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	return missingFields(m, v.Type())
}

func missingFields(m map[string]any, t reflect.Type) []string {
	var missing []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if strings.Contains(opts, "inline") || (f.Anonymous && name == "") {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				missing = append(missing, missingFields(m, ft)...)
			}
			continue
		}
		if !f.IsExported() || f.Tag.Get("required") != "true" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		if _, ok := m[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
