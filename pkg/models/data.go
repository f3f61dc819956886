package models

import (
	"strconv"
	"strings"
)

func dataString(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func dataBool(data map[string]any, key string) bool {
	switch v := data[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)

		return b
	default:
		return false
	}
}

func dataInt(data map[string]any, key string) (int64, bool) {
	switch v := data[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)

		return n, err == nil
	default:
		return 0, false
	}
}

// dataStrings accepts []string, []any or a comma separated string.
func dataStrings(data map[string]any, key string) []string {
	var raw []string

	switch v := data[key].(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(v, ",")
	}

	values := make([]string, 0, len(raw))

	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			values = append(values, s)
		}
	}

	return values
}

func dataButtons(data map[string]any, key string) []Button {
	items, _ := data[key].([]any)

	buttons := make([]Button, 0, len(items))

	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}

		button := Button{
			Type:    dataString(fields, "type"),
			Title:   dataString(fields, "title"),
			URL:     dataString(fields, "url"),
			Payload: dataString(fields, "payload"),
		}

		if button.Type == "" {
			button.Type = ButtonWebURL
			if button.URL == "" {
				button.Type = ButtonPostback
			}
		}

		buttons = append(buttons, button)
	}

	return buttons
}
