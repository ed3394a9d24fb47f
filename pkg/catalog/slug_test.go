package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Kids-Tee", "kids-tee"},
		{"spaces become underscores", "winter jacket 2024", "winter_jacket_2024"},
		{"apostrophes stripped", "men's t-shirt", "mens_t-shirt"},
		{"mixed", "Men's T-Shirt", "mens_t-shirt"},
		{"trims whitespace", "  plain tee  ", "plain_tee"},
		{"already canonical", "mens_t-shirt", "mens_t-shirt"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSlug(tt.input))
		})
	}
}

func TestNormalizeSlugIdempotent(t *testing.T) {
	inputs := []string{"Men's T-Shirt", "winter jacket", "KIDS' HOODIE", "plain-tee"}
	for _, in := range inputs {
		once := NormalizeSlug(in)
		assert.Equal(t, once, NormalizeSlug(once), "normalizing %q twice changed the result", in)
	}
}

func TestSlugFor(t *testing.T) {
	t.Run("explicit slug wins", func(t *testing.T) {
		assert.Equal(t, "custom_slug", SlugFor("Custom Slug", "Some Title"))
	})

	t.Run("derived from title when absent", func(t *testing.T) {
		assert.Equal(t, "mens_t-shirt", SlugFor("", "Men's T-Shirt"))
	})
}
