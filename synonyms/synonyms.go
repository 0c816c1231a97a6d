// Package synonyms provides the opaque term-to-variants lookup the
// Header Clusterizer consults when two column names disagree by more
// than homoglyph folding and fuzzy scoring can resolve on their own.
// Authoring and maintaining the dictionary itself is out of scope here;
// this package is only the narrow lookup surface it exposes.
package synonyms

import "strings"

// Lookup resolves a header term to its known synonym variants.
type Lookup interface {
	Lookup(term string) []string
}

// Canonicalizer resolves a raw header term to the dictionary's preferred
// canonical spelling, when the term is itself a known canonical term or a
// listed variant of one. The Header Clusterizer consults this to prefer a
// dictionary spelling over whichever cluster member happens to win
// centrality.
type Canonicalizer interface {
	Canonicalize(term string) (string, bool)
}

// StaticMap is a Lookup backed by an in-memory map, seeded with a small
// set of common retail/logistics column-name synonyms. A production
// deployment would load this from the durable store's synonyms table
// instead; StaticMap is the fallback when no such table is populated.
type StaticMap struct {
	variants map[string][]string
	reverse  map[string]string
}

// NewStaticMap builds a StaticMap from a seed set, normalizing keys to
// lowercase so lookups are case-insensitive regardless of how the
// caller folded the header first.
func NewStaticMap(seed map[string][]string) *StaticMap {
	m := &StaticMap{
		variants: make(map[string][]string, len(seed)),
		reverse:  make(map[string]string, len(seed)*3),
	}
	for k, variants := range seed {
		key := strings.ToLower(k)
		m.variants[key] = variants
		m.reverse[key] = key
		for _, v := range variants {
			m.reverse[strings.ToLower(v)] = key
		}
	}
	return m
}

// Lookup returns the known variants of term, or nil if term is unknown.
func (m *StaticMap) Lookup(term string) []string {
	return m.variants[strings.ToLower(term)]
}

// Canonicalize returns the dictionary's canonical spelling for term, if
// term (or a listed variant of it) is known.
func (m *StaticMap) Canonicalize(term string) (string, bool) {
	canon, ok := m.reverse[strings.ToLower(strings.TrimSpace(term))]
	return canon, ok
}

// Default is a small built-in dictionary covering the column names most
// likely to appear across heterogeneous retail/logistics exports.
func Default() *StaticMap {
	return NewStaticMap(map[string][]string{
		"customer id":  {"cust_id", "customer_id", "client id", "buyer id"},
		"order id":     {"order_id", "purchase id", "transaction id"},
		"total":        {"amount", "grand total", "order total", "sum"},
		"quantity":     {"qty", "count", "units"},
		"sku":          {"item code", "product code", "article number"},
		"date":         {"order date", "created at", "timestamp"},
		"email":        {"e-mail", "email address", "contact email"},
		"phone":        {"phone number", "tel", "telephone"},
		"status":       {"order status", "state"},
		"country":      {"country code", "nation"},
		"postal code":  {"zip", "zip code", "postcode"},
	})
}
