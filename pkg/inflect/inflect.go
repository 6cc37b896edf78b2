// Package inflect maps URL collection segments (plural English nouns) to
// table names (singular) and back. Resolution is heuristic, not a lookup
// table, so some segments have no singular form; callers treat that as an
// unknown collection.
package inflect

import (
	"strings"

	"github.com/gertd/go-pluralize"
)

// Inflector converts between singular and plural English nouns. It is
// stateless and deterministic; one instance may be shared across goroutines.
type Inflector struct {
	client *pluralize.Client
}

func New() *Inflector {
	return &Inflector{client: pluralize.NewClient()}
}

// Singular returns the singular form of a plural word. The second return
// value is false when the word is not a recognized plural (already singular,
// or not resolvable), in which case the word is not a valid collection name.
func (i *Inflector) Singular(word string) (string, bool) {
	if word == "" {
		return "", false
	}
	if !i.client.IsPlural(word) {
		return "", false
	}
	singular := i.client.Singular(word)
	if strings.TrimSpace(singular) == "" {
		return "", false
	}
	return singular, true
}

// Plural returns the plural form of a word. Words that are already plural
// come back unchanged.
func (i *Inflector) Plural(word string) string {
	return i.client.Plural(word)
}
