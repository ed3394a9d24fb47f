package catalog

import "strings"

// NormalizeSlug canonicalizes a slug: lower-case, spaces become underscores,
// apostrophes are stripped. The transform is idempotent.
func NormalizeSlug(slug string) string {
	slug = strings.ToLower(strings.TrimSpace(slug))
	slug = strings.ReplaceAll(slug, " ", "_")
	slug = strings.ReplaceAll(slug, "'", "")
	return slug
}

// SlugFor returns the product's slug, deriving it from the title when absent,
// always normalized.
func SlugFor(slug, title string) string {
	if slug == "" {
		slug = title
	}
	return NormalizeSlug(slug)
}
