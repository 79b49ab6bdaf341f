package storefront

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// PlainText убирает HTML-теги и сущности, которые витрина отдаёт в названиях.
func PlainText(input string) string {
	cleaned := tagPattern.ReplaceAllString(input, "")
	cleaned = html.UnescapeString(cleaned)
	return strings.TrimSpace(spacePattern.ReplaceAllString(cleaned, " "))
}

// PlainName - название товара без разметки.
func (ci *CatalogItem) PlainName() string {
	return PlainText(ci.Name)
}
