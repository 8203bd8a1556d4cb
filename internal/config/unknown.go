package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// detectUnknownFields compares the raw YAML mapping with the yaml tags of
// known, recursing into nested struct fields. Unknown keys are warnings, not
// errors, so newer metadata keeps loading with older binaries.
func detectUnknownFields(data []byte, known any, label string) []string {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return []string{fmt.Sprintf("internal: failed to re-parse %s for unknown field detection", label)}
	}

	var warnings []string
	walkUnknown(raw, reflect.TypeOf(known), "", label, &warnings)
	sort.Strings(warnings)
	return warnings
}

func walkUnknown(raw map[string]any, t reflect.Type, prefix, label string, warnings *[]string) {
	fields := getYAMLFields(t)
	for key, value := range raw {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		ft, ok := fields[key]
		if !ok {
			*warnings = append(*warnings, fmt.Sprintf("unknown field %q in %s (ignored)", path, label))
			continue
		}
		nested, isMap := value.(map[string]any)
		if !isMap {
			continue
		}
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			walkUnknown(nested, ft, path, label, warnings)
		}
	}
}

// getYAMLFields returns known YAML field names mapped to their Go types.
func getYAMLFields(t reflect.Type) map[string]reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	fields := make(map[string]reflect.Type)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name != "" {
			fields[name] = field.Type
		}
	}
	return fields
}
