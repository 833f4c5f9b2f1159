package matching

import (
	"time"

	"github.com/google/uuid"
)

// ScopeKind is a hierarchy level.
type ScopeKind string

const (
	ScopeComponent ScopeKind = "component"
	ScopeProduct   ScopeKind = "product"
)

// Scope identifies one hierarchy node and its assembly file.
type Scope struct {
	Kind      ScopeKind `json:"kind"`
	ID        string    `json:"id"`
	Name      string    `json:"component_name,omitempty"`
	SourceID  string    `json:"source_id"`
	ModelFile string    `json:"glb_file,omitempty"`
}

// String renders "kind:id".
func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID
}

// MeshMatchDetail is the per-part line of a scope report.
type MeshMatchDetail struct {
	MeshID     string  `json:"mesh_id"`
	NodeID     string  `json:"node_name"`
	RawName    string  `json:"geometry_name"`
	FixedName  string  `json:"fixed_name"`
	Code       string  `json:"bom_code,omitempty"`
	BOMName    string  `json:"bom_name,omitempty"`
	Method     Method  `json:"match_method,omitempty"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"ai_reason,omitempty"`
}

// ScopeResult is the terminal artifact of one scope's pass.
type ScopeResult struct {
	Scope                     Scope             `json:"scope"`
	Mapping                   MatchMapping      `json:"bom_to_mesh"`
	TotalBOM                  int               `json:"total_bom_count"`
	TotalMeshParts            int               `json:"total_3d_parts"`
	MatchedBOMCount           int               `json:"bom_matched_count"`
	CodeMatchedCount          int               `json:"code_matched"`
	SpecMatchedCount          int               `json:"spec_matched"`
	AIMatchedCount            int               `json:"ai_matched"`
	DeterministicMatchedCount int               `json:"deterministic_matched"`
	HighConfidenceProposals   int               `json:"high_confidence_proposals"`
	MatchingRate              float64           `json:"matching_rate"`
	Skipped                   bool              `json:"skipped"`
	Notes                     []string          `json:"notes,omitempty"`
	Details                   []MeshMatchDetail `json:"details,omitempty"`
}

// NewSkippedResult returns the empty result recorded for a scope that could
// not run.
func NewSkippedResult(scope Scope, totalBOM, totalParts int, notes ...string) ScopeResult {
	return ScopeResult{
		Scope:          scope,
		Mapping:        MatchMapping{},
		TotalBOM:       totalBOM,
		TotalMeshParts: totalParts,
		Skipped:        true,
		Notes:          notes,
	}
}

// NewScopeResult assembles a completed scope from its merge and the
// deterministic pass that preceded it.
func NewScopeResult(scope Scope, idx *Index, parts []MeshPart, det DeterministicResult, merged MergeResult) ScopeResult {
	stats := merged.Stats(idx.Len())
	res := ScopeResult{
		Scope:                     scope,
		Mapping:                   merged.Mapping,
		TotalBOM:                  stats.TotalBOM,
		TotalMeshParts:            len(parts),
		MatchedBOMCount:           stats.MatchedBOMCount,
		CodeMatchedCount:          stats.CodeMatchedCount,
		SpecMatchedCount:          stats.SpecMatchedCount,
		AIMatchedCount:            stats.AIMatchedCount,
		DeterministicMatchedCount: stats.DeterministicMatchedCount,
		MatchingRate:              stats.MatchingRate,
		Details:                   make([]MeshMatchDetail, 0, len(parts)),
	}

	names := make(map[string]string, idx.Len())
	for _, r := range idx.Records() {
		if r.HasCode() {
			names[r.Code] = r.Name
		}
	}
	for _, p := range parts {
		d := MeshMatchDetail{
			MeshID:    p.MeshID,
			NodeID:    p.NodeID,
			RawName:   p.RawName,
			FixedName: det.FixedNames[p.MeshID],
		}
		if c, ok := merged.Assigned[p.MeshID]; ok {
			d.Code = c.MatchedCode
			d.BOMName = names[c.MatchedCode]
			d.Method = c.Method
			d.Confidence = c.Confidence
			d.Rationale = c.Rationale
			if c.Method == MethodAI && c.Confidence >= HighConfidence {
				res.HighConfidenceProposals++
			}
		}
		res.Details = append(res.Details, d)
	}
	return res
}

// Summary aggregates every scope of a run.
type Summary struct {
	Scopes        int     `json:"scopes"`
	SkippedScopes int     `json:"skipped_scopes"`
	TotalBOM      int     `json:"total_bom_count"`
	MatchedBOM    int     `json:"bom_matched_count"`
	AIMatched     int     `json:"ai_matched"`
	MatchingRate  float64 `json:"matching_rate"`
}

// Report is the aggregated result of one hierarchical run.
type Report struct {
	RunID      uuid.UUID     `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Components []ScopeResult `json:"component_level_mappings"`
	Product    *ScopeResult  `json:"product_level_mapping,omitempty"`
	Summary    Summary       `json:"summary"`
}

// Component returns the component result with the given id.
func (r *Report) Component(id string) (ScopeResult, bool) {
	for _, c := range r.Components {
		if c.Scope.ID == id {
			return c, true
		}
	}
	return ScopeResult{}, false
}

// Scopes returns components followed by the product result.
func (r *Report) Scopes() []ScopeResult {
	out := make([]ScopeResult, 0, len(r.Components)+1)
	out = append(out, r.Components...)
	if r.Product != nil {
		out = append(out, *r.Product)
	}
	return out
}

// Summarize recomputes Summary from the scope results.
func (r *Report) Summarize() {
	var s Summary
	for _, sc := range r.Scopes() {
		s.Scopes++
		if sc.Skipped {
			s.SkippedScopes++
			continue
		}
		s.TotalBOM += sc.TotalBOM
		s.MatchedBOM += sc.MatchedBOMCount
		s.AIMatched += sc.AIMatchedCount
	}
	if s.TotalBOM > 0 {
		s.MatchingRate = float64(s.MatchedBOM) / float64(s.TotalBOM)
	}
	r.Summary = s
}
