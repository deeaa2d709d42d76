package monitoring

import "strings"

// NormalizePath returns the route template when gin resolved one, otherwise
// collapses view IDs so raw paths do not explode label cardinality.
func NormalizePath(template, raw string) string {
	if template != "" {
		return template
	}

	parts := strings.Split(raw, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, "view_") {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
