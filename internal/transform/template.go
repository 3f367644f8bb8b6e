// Package transform renders the small brace templates used in mirrors.yaml.
package transform

import (
	"fmt"
	"strings"
)

// Render substitutes {name} placeholders in tmpl from vars. "{{" and "}}"
// produce literal braces. Unknown or unterminated placeholders are errors.
func Render(tmpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d in %q", i, tmpl)
			}
			name := tmpl[i+1 : i+1+end]
			val, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("unknown placeholder {%s} in %q", name, tmpl)
			}
			b.WriteString(val)
			i += end + 1
		case c == '}':
			return "", fmt.Errorf("single '}' at offset %d in %q", i, tmpl)
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), nil
}

// ContentID renders a content_id_template for a region and cloud.
func ContentID(tmpl, region, cloudName string) (string, error) {
	id, err := Render(tmpl, map[string]string{
		"region":     region,
		"cloud_name": cloudName,
	})
	if err != nil {
		return "", fmt.Errorf("content_id_template: %w", err)
	}
	return id, nil
}
