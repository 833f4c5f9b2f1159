package matching

import "sort"

// MatchMapping maps a BOM code to the mesh ids bound to it.
type MatchMapping map[string][]string

// Codes returns the mapped codes in lexical order.
func (m MatchMapping) Codes() []string {
	codes := make([]string, 0, len(m))
	for c := range m {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// MeshCount is the number of mesh ids across all codes.
func (m MatchMapping) MeshCount() int {
	n := 0
	for _, ids := range m {
		n += len(ids)
	}
	return n
}

// CodeFor returns the code meshID is mapped under.
func (m MatchMapping) CodeFor(meshID string) (string, bool) {
	for code, ids := range m {
		for _, id := range ids {
			if id == meshID {
				return code, true
			}
		}
	}
	return "", false
}

// MergeResult is the merged mapping of one scope plus the bookkeeping needed
// for statistics and per-part details.
type MergeResult struct {
	Mapping MatchMapping

	// Assigned holds the accepted candidate of every mapped mesh id.
	Assigned map[string]MatchCandidate

	// FirstMethod is the method that first contributed to each code.
	FirstMethod map[string]Method

	// DeterministicCodes is the number of distinct codes claimed before any
	// fallback proposal was applied.
	DeterministicCodes int

	// Dropped counts candidates rejected by mesh reuse or precedence.
	Dropped int
}

// Merge folds deterministic matches (in part order) and then fallback
// proposals into one mapping. A mesh id is bound at most once. A candidate
// is dropped when its code was first claimed by a strictly higher-precedence
// method; otherwise its mesh id is appended under the code.
func Merge(det []Match, ai []AIMatch) MergeResult {
	res := MergeResult{
		Mapping:     make(MatchMapping),
		Assigned:    make(map[string]MatchCandidate),
		FirstMethod: make(map[string]Method),
	}

	for _, m := range det {
		if c, ok := Candidate(m); ok {
			res.apply(c)
		}
	}
	res.DeterministicCodes = len(res.Mapping)

	for _, m := range ai {
		if c, ok := Candidate(m); ok {
			res.apply(c)
		}
	}
	return res
}

func (r *MergeResult) apply(c MatchCandidate) {
	if _, taken := r.Assigned[c.MeshID]; taken {
		r.Dropped++
		return
	}
	if first, seen := r.FirstMethod[c.MatchedCode]; seen && first.Precedence() > c.Method.Precedence() {
		r.Dropped++
		return
	}
	if _, seen := r.FirstMethod[c.MatchedCode]; !seen {
		r.FirstMethod[c.MatchedCode] = c.Method
	}
	r.Mapping[c.MatchedCode] = append(r.Mapping[c.MatchedCode], c.MeshID)
	r.Assigned[c.MeshID] = c
}

// MergeStats are the coverage counts of one merged scope.
type MergeStats struct {
	TotalBOM                  int
	MatchedBOMCount           int
	CodeMatchedCount          int
	SpecMatchedCount          int
	AIMatchedCount            int
	DeterministicMatchedCount int
	MatchingRate              float64
}

// Stats computes coverage against totalBOM rows. The rate is 0 when the
// scope has no rows.
func (r MergeResult) Stats(totalBOM int) MergeStats {
	s := MergeStats{
		TotalBOM:                  totalBOM,
		MatchedBOMCount:           len(r.Mapping),
		DeterministicMatchedCount: r.DeterministicCodes,
	}
	for code := range r.Mapping {
		switch r.FirstMethod[code] {
		case MethodCode:
			s.CodeMatchedCount++
		case MethodSpec:
			s.SpecMatchedCount++
		case MethodAI:
			s.AIMatchedCount++
		}
	}
	if totalBOM > 0 {
		s.MatchingRate = float64(s.MatchedBOMCount) / float64(totalBOM)
	}
	return s
}
