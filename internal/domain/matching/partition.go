package matching

import (
	"fmt"
	"strings"
)

// SourceMatchMode selects how a record's provenance is compared with the
// product source id.
type SourceMatchMode string

const (
	SourceMatchExact  SourceMatchMode = "exact"
	SourceMatchPrefix SourceMatchMode = "prefix"
)

// Partitioner splits a global BOM into per-scope subsets by provenance.
type Partitioner struct {
	ProductSourceID    string
	ProductSourceMatch SourceMatchMode

	// SubAssemblyMarker excludes a row from the product scope when its name
	// contains it. Empty disables the exclusion.
	SubAssemblyMarker string

	// ComponentSourcePattern derives a component source id from its
	// assembly order, e.g. "组件图%d.pdf".
	ComponentSourcePattern string
}

// Component returns the records whose provenance equals sourceID.
func (p Partitioner) Component(records []BOMRecord, sourceID string) []BOMRecord {
	var out []BOMRecord
	for _, r := range records {
		if r.SourceScope == sourceID {
			out = append(out, r)
		}
	}
	return out
}

// Product returns the records of the top-level drawing that are not
// themselves sub-assemblies.
func (p Partitioner) Product(records []BOMRecord) []BOMRecord {
	var out []BOMRecord
	for _, r := range records {
		if p.isProductSource(r.SourceScope) && !p.isSubAssembly(r) {
			out = append(out, r)
		}
	}
	return out
}

// Excluded counts product-source records dropped by the sub-assembly marker.
func (p Partitioner) Excluded(records []BOMRecord) int {
	n := 0
	for _, r := range records {
		if p.isProductSource(r.SourceScope) && p.isSubAssembly(r) {
			n++
		}
	}
	return n
}

// ComponentSourceID returns the provenance tag of the component drawn at
// assembly order.
func (p Partitioner) ComponentSourceID(order int) string {
	return fmt.Sprintf(p.ComponentSourcePattern, order)
}

func (p Partitioner) isProductSource(scope string) bool {
	if p.ProductSourceMatch == SourceMatchPrefix {
		prefix := strings.TrimSuffix(p.ProductSourceID, ".pdf")
		return prefix != "" && strings.HasPrefix(scope, prefix)
	}
	return scope == p.ProductSourceID
}

func (p Partitioner) isSubAssembly(r BOMRecord) bool {
	return p.SubAssemblyMarker != "" && strings.Contains(r.Name, p.SubAssemblyMarker)
}
