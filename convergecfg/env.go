package convergecfg

import (
	"reflect"
	"strings"

	"gopkg.in/yaml.v2"
)

// envOverlay applies environment variables over an already-parsed
// Configuration via a nested-struct reflection walk: v.Log.Level is
// overridden by PREFIX_LOG_LEVEL, a map field's entries by
// PREFIX_FIELD_KEY, and so on recursively.
type envOverlay struct {
	env map[string]string
}

func newEnvOverlay(environ []string, prefix string) *envOverlay {
	e := &envOverlay{env: make(map[string]string, len(environ))}
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if !strings.HasPrefix(parts[0], prefix+"_") && parts[0] != prefix {
			continue
		}
		e.env[parts[0]] = parts[1]
	}
	return e
}

func (e *envOverlay) apply(cfg *Configuration) error {
	return e.walk(reflect.ValueOf(cfg).Elem(), "CONVERGE")
}

func (e *envOverlay) walk(v reflect.Value, prefix string) error {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			field := v.Type().Field(i)
			fieldPrefix := strings.ToUpper(prefix + "_" + field.Name)
			if raw, ok := e.env[fieldPrefix]; ok {
				dst := reflect.New(field.Type)
				if err := yaml.Unmarshal([]byte(raw), dst.Interface()); err != nil {
					return err
				}
				v.Field(i).Set(dst.Elem())
			}
			if err := e.walk(v.Field(i), fieldPrefix); err != nil {
				return err
			}
		}
	case reflect.Map:
		if v.Type().Elem().Kind() != reflect.Interface && v.Type().Elem().Kind() != reflect.String {
			break
		}
		if v.IsNil() {
			return nil
		}
		for _, key := range v.MapKeys() {
			elemPrefix := strings.ToUpper(prefix + "_" + key.String())
			if raw, ok := e.env[elemPrefix]; ok {
				dst := reflect.New(v.Type().Elem())
				if err := yaml.Unmarshal([]byte(raw), dst.Interface()); err != nil {
					return err
				}
				v.SetMapIndex(key, dst.Elem())
			}
		}
	}
	return nil
}
