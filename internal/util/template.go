package util

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Instruction templates are rendered once per agent step, usually from a
// handful of distinct texts. Parsed templates are cached by source text.
var templates sync.Map // string -> *template.Template

var templateFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items any) string {
		switch v := items.(type) {
		case []string:
			return strings.Join(v, sep)
		case []any:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprint(item)
			}
			return strings.Join(parts, sep)
		default:
			return fmt.Sprint(items)
		}
	},
	"json": func(v any) (string, error) {
		raw, err := json.Marshal(v)
		return string(raw), err
	},
}

// RenderTemplate renders an instruction with run variables using
// text/template. Optional variables should be wrapped in the default helper:
//
//	{{ default "a customer" .customer }}
func RenderTemplate(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := parseTemplate(text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("render instruction: %w", err)
	}
	return sb.String(), nil
}

func parseTemplate(text string) (*template.Template, error) {
	if cached, ok := templates.Load(text); ok {
		return cached.(*template.Template), nil
	}
	tmpl, err := template.New("instruction").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse instruction: %w", err)
	}
	templates.Store(text, tmpl)
	return tmpl, nil
}

// CheckTemplate reports template syntax errors in text without rendering it.
func CheckTemplate(text string) error {
	if !strings.Contains(text, "{{") {
		return nil
	}
	_, err := parseTemplate(text)
	return err
}
