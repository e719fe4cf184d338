package chat

import "strings"

// SanitizeModelID cleans up model ids pasted into dashboards: surrounding
// whitespace and quotes are removed and any ":revision" suffix is dropped.
func SanitizeModelID(s string) string {
	id := strings.TrimSpace(s)
	id = strings.TrimPrefix(id, `"`)
	id = strings.TrimSuffix(id, `"`)
	id = strings.TrimPrefix(id, "'")
	id = strings.TrimSuffix(id, "'")
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[:i]
	}
	return id
}
