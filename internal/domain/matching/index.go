package matching

// TextAnalyzer repairs part names and pulls codes and size tokens out of
// them. It is implemented by bomtext.Extractor.
type TextAnalyzer interface {
	Normalize(name string) string
	ExtractCode(name string) (string, bool)
	ExtractSpec(name string) (string, bool)
}

// SpecExtractor is the subset of TextAnalyzer the index needs.
type SpecExtractor interface {
	ExtractSpec(name string) (string, bool)
}

// Index is the scope-local lookup over one BOM partition. It is built fresh
// for every matching pass and is read-only afterwards.
type Index struct {
	records []BOMRecord
	byCode  map[string]BOMRecord
	bySpec  map[string][]BOMRecord
}

// NewIndex indexes records by code (last write wins) and by spec. The spec
// of a record comes from its product code when present, else from its name.
func NewIndex(records []BOMRecord, x SpecExtractor) *Index {
	idx := &Index{
		records: records,
		byCode:  make(map[string]BOMRecord, len(records)),
		bySpec:  make(map[string][]BOMRecord),
	}
	for _, r := range records {
		if r.Code != "" {
			idx.byCode[r.Code] = r
		}
		spec, ok := x.ExtractSpec(r.ProductCode)
		if !ok {
			spec, ok = x.ExtractSpec(r.Name)
		}
		if ok && spec != "" {
			idx.bySpec[spec] = append(idx.bySpec[spec], r)
		}
	}
	return idx
}

// ByCode returns the record registered under code.
func (i *Index) ByCode(code string) (BOMRecord, bool) {
	r, ok := i.byCode[code]
	return r, ok
}

// BySpec returns every record sharing spec, in indexing order.
func (i *Index) BySpec(spec string) []BOMRecord {
	return i.bySpec[spec]
}

// FirstBySpec returns the first record indexed under spec.
func (i *Index) FirstBySpec(spec string) (BOMRecord, bool) {
	rs := i.bySpec[spec]
	if len(rs) == 0 {
		return BOMRecord{}, false
	}
	return rs[0], true
}

// Len is the number of indexed records.
func (i *Index) Len() int { return len(i.records) }

// Records returns the indexed partition in input order.
func (i *Index) Records() []BOMRecord { return i.records }

// CodeCount is the number of distinct codes.
func (i *Index) CodeCount() int { return len(i.byCode) }

// SpecCount is the number of distinct specs.
func (i *Index) SpecCount() int { return len(i.bySpec) }

// SharedSpec is a spec that bound mesh parts while several distinct codes
// were indexed under it. The first indexed record always wins.
type SharedSpec struct {
	Spec      string
	BoundCode string
	Codes     []string
}

// SharedSpecs reports the specs among matches that resolved through a tie.
func (i *Index) SharedSpecs(matches []Match) []SharedSpec {
	var out []SharedSpec
	seen := make(map[string]bool)
	for _, m := range matches {
		sm, ok := m.(SpecMatch)
		if !ok || seen[sm.Spec] {
			continue
		}
		seen[sm.Spec] = true

		var codes []string
		dup := make(map[string]bool)
		for _, r := range i.bySpec[sm.Spec] {
			if r.Code != "" && !dup[r.Code] {
				dup[r.Code] = true
				codes = append(codes, r.Code)
			}
		}
		if len(codes) > 1 {
			out = append(out, SharedSpec{Spec: sm.Spec, BoundCode: sm.Code, Codes: codes})
		}
	}
	return out
}
