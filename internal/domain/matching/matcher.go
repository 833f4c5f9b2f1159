package matching

// ResidualPart is a mesh part left unmatched by the deterministic pass,
// carrying its repaired name for the fallback matcher.
type ResidualPart struct {
	MeshID  string `json:"mesh_id"`
	NodeID  string `json:"node_id"`
	RawName string `json:"geometry_name"`
	Name    string `json:"fixed_name"`
}

// DeterministicResult is the output of one deterministic pass over a scope.
type DeterministicResult struct {
	// Matches holds exactly one variant per input part, in part order.
	Matches []Match

	// UnmatchedParts are the parts that received NoMatch.
	UnmatchedParts []MeshPart

	// UnmatchedBOM are records whose code was not claimed. Records without
	// a code are always residual.
	UnmatchedBOM []BOMRecord

	// FixedNames maps mesh id to the normalized part name.
	FixedNames map[string]string
}

// MatchedCount is the number of parts that received a code or spec match.
func (r DeterministicResult) MatchedCount() int {
	return len(r.Matches) - len(r.UnmatchedParts)
}

// Residual returns UnmatchedParts with their normalized names.
func (r DeterministicResult) Residual() []ResidualPart {
	out := make([]ResidualPart, 0, len(r.UnmatchedParts))
	for _, p := range r.UnmatchedParts {
		out = append(out, ResidualPart{
			MeshID:  p.MeshID,
			NodeID:  p.NodeID,
			RawName: p.RawName,
			Name:    r.FixedNames[p.MeshID],
		})
	}
	return out
}

// Matcher is the deterministic code/spec matcher. It keeps no state between
// calls.
type Matcher struct {
	text TextAnalyzer
}

// NewMatcher returns a Matcher over text.
func NewMatcher(text TextAnalyzer) *Matcher {
	return &Matcher{text: text}
}

// Match pairs each part with at most one record of idx. Code lookups take
// precedence over spec lookups; a spec shared by several records binds to
// the first indexed one.
func (m *Matcher) Match(idx *Index, parts []MeshPart) DeterministicResult {
	res := DeterministicResult{
		Matches:    make([]Match, 0, len(parts)),
		FixedNames: make(map[string]string, len(parts)),
	}
	claimed := make(map[string]struct{})

	for _, p := range parts {
		name := m.text.Normalize(p.RawName)
		res.FixedNames[p.MeshID] = name

		match := m.matchOne(idx, p.MeshID, name)
		switch v := match.(type) {
		case CodeMatch:
			claimed[v.Code] = struct{}{}
		case SpecMatch:
			claimed[v.Code] = struct{}{}
		case NoMatch:
			res.UnmatchedParts = append(res.UnmatchedParts, p)
		}
		res.Matches = append(res.Matches, match)
	}

	for _, r := range idx.Records() {
		if !r.HasCode() {
			res.UnmatchedBOM = append(res.UnmatchedBOM, r)
			continue
		}
		if _, ok := claimed[r.Code]; !ok {
			res.UnmatchedBOM = append(res.UnmatchedBOM, r)
		}
	}
	return res
}

func (m *Matcher) matchOne(idx *Index, meshID, name string) Match {
	if code, ok := m.text.ExtractCode(name); ok {
		if r, found := idx.ByCode(code); found {
			return CodeMatch{MeshID: meshID, Code: r.Code, Confidence: CodeConfidence}
		}
	}
	if spec, ok := m.text.ExtractSpec(name); ok {
		// a spec hit on a code-less row cannot enter the mapping
		if r, found := idx.FirstBySpec(spec); found && r.HasCode() {
			return SpecMatch{MeshID: meshID, Code: r.Code, Spec: spec, Confidence: SpecConfidence}
		}
	}
	return NoMatch{MeshID: meshID}
}
