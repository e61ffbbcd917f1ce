package engines

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"reflect"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var sanitizePolicy = bluemonday.UGCPolicy()

// Funcs returns the helper functions available to plain and compiled
// templates. include renders another view through loader.
func Funcs(loader ViewLoader) template.FuncMap {
	return template.FuncMap{
		"raw": func(v any) template.HTML {
			return template.HTML(toString(v))
		},
		"upper": func(v any) string {
			return strings.ToUpper(toString(v))
		},
		"lower": func(v any) string {
			return strings.ToLower(toString(v))
		},
		"title": func(v any) string {
			return cases.Title(language.Und).String(toString(v))
		},
		"sanitize": func(v any) template.HTML {
			return template.HTML(sanitizePolicy.Sanitize(toString(v)))
		},
		"default": func(fallback, v any) any {
			if isEmpty(v) {
				return fallback
			}
			return v
		},
		"json": func(v any) (template.JS, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return template.JS(b), nil
		},
		"dict": dict,
		"include": func(name string, data any, extra ...any) (template.HTML, error) {
			if loader == nil {
				return "", fmt.Errorf("include %q: no view loader configured", name)
			}
			merged, err := mergeData(data, extra...)
			if err != nil {
				return "", fmt.Errorf("include %q: %w", name, err)
			}
			out, err := loader.RenderView(name, merged)
			return template.HTML(out), err
		},
	}
}

func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("dict requires key/value pairs")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

func mergeData(data any, extra ...any) (map[string]any, error) {
	merged := make(map[string]any)
	if m, ok := data.(map[string]any); ok {
		for k, v := range m {
			merged[k] = v
		}
	}
	for _, e := range extra {
		if e == nil {
			continue
		}
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("include data must be a map, got %T", e)
		}
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged, nil
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case template.HTML:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return rv.IsZero()
	}
}
