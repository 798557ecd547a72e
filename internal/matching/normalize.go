package matching

import "strings"

var leadingArticles = []string{"the ", "a ", "an "}

// Normalize lower-cases and trims title, then strips one leading article.
func Normalize(title string) string {
	normalized := strings.ToLower(strings.TrimSpace(title))
	for _, article := range leadingArticles {
		if strings.HasPrefix(normalized, article) {
			return strings.TrimSpace(normalized[len(article):])
		}
	}
	return normalized
}
