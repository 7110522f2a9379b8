// Package messages holds the reminder lines shown in alarm headers.
package messages

import (
	"math/rand/v2"
	"os"
	"strings"
	"sync"
)

// Category selects a list of reminder lines.
type Category string

const (
	Urgent  Category = "urgent"
	Warning Category = "warning"
)

// Picker returns a random reminder line for a category.
type Picker interface {
	Random(Category) string
}

// Catalog is a Picker over one locale's lists, falling back to English for
// categories the locale does not define.
type Catalog struct {
	locale   string
	lists    map[Category][]string
	fallback string

	mu  sync.Mutex
	rnd *rand.Rand
}

// New builds the catalog for locale. An empty locale is detected from the
// environment. A nil rnd uses a time-seeded source.
func New(locale string, rnd *rand.Rand) *Catalog {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = DetectLocale()
	}
	locale = normalizeLocale(locale)
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	c := &Catalog{
		locale:   locale,
		lists:    make(map[Category][]string),
		fallback: enFallback,
		rnd:      rnd,
	}
	for k, v := range EnMessages {
		c.lists[k] = v
	}
	if locale == "vi" {
		for k, v := range ViMessages {
			c.lists[k] = v
		}
		c.fallback = viFallback
	}
	return c
}

func (c *Catalog) Locale() string {
	return c.locale
}

// Random picks a line from category. Unknown or empty categories get the
// gentle fallback line.
func (c *Catalog) Random(category Category) string {
	list := c.lists[category]
	if len(list) == 0 {
		return c.fallback
	}
	c.mu.Lock()
	i := c.rnd.IntN(len(list))
	c.mu.Unlock()
	return list[i]
}

// DetectLocale reads LC_ALL, LC_MESSAGES and LANG in that order.
func DetectLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "en"
}

func normalizeLocale(locale string) string {
	l := strings.ToLower(locale)
	if i := strings.IndexAny(l, ".@"); i >= 0 {
		l = l[:i]
	}
	l = strings.ReplaceAll(l, "_", "-")
	if l == "vi" || strings.HasPrefix(l, "vi-") {
		return "vi"
	}
	return "en"
}
