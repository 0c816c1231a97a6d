package synonyms

import "testing"

func TestStaticMapLookupCaseInsensitive(t *testing.T) {
	m := NewStaticMap(map[string][]string{"Customer ID": {"cust_id"}})
	variants := m.Lookup("customer id")
	if len(variants) != 1 || variants[0] != "cust_id" {
		t.Fatalf("expected [cust_id], got %v", variants)
	}
}

func TestStaticMapLookupUnknown(t *testing.T) {
	m := NewStaticMap(nil)
	if got := m.Lookup("nonexistent"); got != nil {
		t.Errorf("expected nil for unknown term, got %v", got)
	}
}

func TestDefaultCoversCommonColumns(t *testing.T) {
	d := Default()
	for _, term := range []string{"customer id", "order id", "total", "sku"} {
		if d.Lookup(term) == nil {
			t.Errorf("expected default dictionary to cover %q", term)
		}
	}
}

func TestCanonicalizeResolvesVariant(t *testing.T) {
	d := Default()
	canon, ok := d.Canonicalize("cust_id")
	if !ok || canon != "customer id" {
		t.Fatalf("expected cust_id to resolve to 'customer id', got %q, %v", canon, ok)
	}
}

func TestCanonicalizeResolvesCanonicalTermItself(t *testing.T) {
	d := Default()
	canon, ok := d.Canonicalize("Total")
	if !ok || canon != "total" {
		t.Fatalf("expected 'Total' to resolve to itself, got %q, %v", canon, ok)
	}
}

func TestCanonicalizeUnknownTerm(t *testing.T) {
	d := Default()
	if _, ok := d.Canonicalize("widget_flavor"); ok {
		t.Errorf("expected unknown term to not resolve")
	}
}
