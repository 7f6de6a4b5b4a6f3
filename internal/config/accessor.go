package config

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Paths are the json names of the Config fields joined by dots, so
// "connect.connectToken" addresses Config.Connect.ConnectToken.

// GetByPath returns the value at path. A section path such as "browser"
// returns the whole section struct.
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookup(cfg, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// SetByPath parses value according to the kind of the field at path and
// stores it. String lists take comma-separated values.
func SetByPath(cfg *Config, path, value string) error {
	v, err := lookup(cfg, path)
	if err != nil {
		return err
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: expected true or false, got %q", path, value)
		}
		v.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: expected an integer, got %q", path, value)
		}
		v.SetInt(int64(n))
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%s: unsupported list type %s", path, v.Type())
		}
		v.Set(reflect.ValueOf(splitList(value)))
	case reflect.Struct:
		return fmt.Errorf("%s is a section; set one of its fields", path)
	default:
		return fmt.Errorf("%s: unsupported type %s", path, v.Type())
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func lookup(cfg *Config, path string) (reflect.Value, error) {
	if path == "" {
		return reflect.Value{}, fmt.Errorf("empty path")
	}
	v := reflect.ValueOf(cfg).Elem()
	for _, key := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("key not found: %s (%s is not a section)", path, key)
		}
		f, ok := fieldByName(v, key)
		if !ok {
			return reflect.Value{}, fmt.Errorf("key not found: %s", path)
		}
		v = f
	}
	return v, nil
}

// fieldByName finds the struct field whose json name is key.
func fieldByName(v reflect.Value, key string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == key {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Sanitize returns a copy of cfg with the connect token masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Connect.ProductSubset = slices.Clone(cfg.Connect.ProductSubset)
	out.Server.AllowedOrigins = slices.Clone(cfg.Server.AllowedOrigins)
	if out.Connect.ConnectToken != "" {
		out.Connect.ConnectToken = maskString(out.Connect.ConnectToken)
	}
	return &out
}

// maskString keeps the first and last four characters.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable path with its current value.
func ListPaths(cfg *Config) map[string]any {
	result := make(map[string]any)
	collect("", reflect.ValueOf(cfg).Elem(), result)
	return result
}

func collect(prefix string, v reflect.Value, result map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if f := v.Field(i); f.Kind() == reflect.Struct {
			collect(path, f, result)
		} else {
			result[path] = f.Interface()
		}
	}
}
