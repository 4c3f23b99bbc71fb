// Package contract holds the domain model shared by every drafting stage:
// sessions, contract types, the known-type catalog, required-field sets and
// extracted field maps, plus the error taxonomy the stages report with.
package contract

import (
	"strings"
)

// Type identifies a contract kind. It is either a catalog name such as
// "Real Estate Lease Agreement" or a free-form label returned by the
// classification model. Once resolved for a conversation it keys the draft
// store.
type Type string

// String implements fmt.Stringer.
func (t Type) String() string { return string(t) }

// Session is the per-user conversation state the pipeline consumes.
//
// Language is pinned on first successful detection and never changes
// afterwards. ActiveType is the contract type most recently drafted in the
// session and selects the draft returned by fetch-draft.
type Session struct {
	ID         string
	Language   string
	ActiveType Type
}

// Fields maps a field label to its extracted value. Keys need not match
// template placeholder labels exactly; see package merge.
type Fields map[string]string

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// RequiredFieldSet is the ordered list of human-readable field descriptors
// for a contract type. Duplicates are kept as returned.
//
// Degraded is set when the list could not be produced and Fields is empty
// because of a backend failure rather than because the model listed nothing.
type RequiredFieldSet struct {
	Fields   []string
	Degraded bool
}

// CatalogEntry is one known contract type.
type CatalogEntry struct {
	Name        Type   `yaml:"name"        json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Catalog is the ordered list of known contract types. Order is significant:
// it decides which entry wins when several names occur in the same input.
type Catalog []CatalogEntry

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		{Name: "Real Estate Lease Agreement", Description: "Documents related to Real Estate Lease Agreement"},
		{Name: "Power of attorney", Description: "Documents related to power of attorney"},
		{Name: "Complaint", Description: "Documents related to litigation"},
	}
}

// Match returns the first entry (in catalog order) whose name occurs in input
// as a case-sensitive substring.
func (c Catalog) Match(input string) (Type, bool) {
	for _, e := range c {
		if e.Name != "" && strings.Contains(input, string(e.Name)) {
			return e.Name, true
		}
	}
	return "", false
}

// Lookup returns the entry named name.
func (c Catalog) Lookup(name string) (CatalogEntry, bool) {
	for _, e := range c {
		if string(e.Name) == name {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// Names returns the entry names in catalog order.
func (c Catalog) Names() []Type {
	out := make([]Type, len(c))
	for i, e := range c {
		out[i] = e.Name
	}
	return out
}
