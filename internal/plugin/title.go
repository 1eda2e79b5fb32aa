package plugin

import "strings"

// TitleCase turns an identifier like "design-system" into "Design System".
func TitleCase(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
