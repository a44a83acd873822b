// Package template renders {{name}} placeholders in message and notification templates.
package template

import (
	"fmt"
	"regexp"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// Render substitutes every {{name}} with the string form of vars[name].
// Missing and nil values render as the empty string.
func Render(content string, vars map[string]interface{}) string {
	return placeholder.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok || value == nil {
			return ""
		}
		if s, ok := value.(string); ok {
			return s
		}
		return fmt.Sprint(value)
	})
}

// Variables returns the distinct placeholder names in order of first appearance.
func Variables(content string) []string {
	matches := placeholder.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
