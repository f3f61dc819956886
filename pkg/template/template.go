// Package template renders message content with run variables.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Render executes content as a text/template over vars. Unknown variables render
// as empty strings. Content without actions is returned untouched.
func Render(content string, vars map[string]any) (string, error) {
	if !strings.Contains(content, "{{") {
		return content, nil
	}

	tmpl, err := template.
		New("message").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"default": func(fallback, value string) string {
				if value == "" {
					return fallback
				}

				return value
			},
		}).Parse(content)
	if err != nil {
		return content, fmt.Errorf("failed to parse template '%s': %w", content, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, stringify(vars))
	if err != nil {
		return content, fmt.Errorf("failed to execute template '%s': %w", content, err)
	}

	return buf.String(), nil
}

// stringify flattens vars so missing keys resolve to "" rather than "<no value>".
func stringify(vars map[string]any) map[string]string {
	data := make(map[string]string, len(vars))

	for key, value := range vars {
		if value == nil {
			continue
		}

		data[key] = fmt.Sprint(value)
	}

	return data
}
