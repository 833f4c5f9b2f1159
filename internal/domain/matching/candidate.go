package matching

// Method identifies how a mesh part was paired with a BOM code.
type Method string

const (
	MethodCode Method = "code"
	MethodSpec Method = "spec"
	MethodAI   Method = "ai"
)

const (
	// CodeConfidence is reported for every code match.
	CodeConfidence = 0.95
	// SpecConfidence is reported for every spec match.
	SpecConfidence = 0.85
	// HighConfidence is the threshold above which fallback proposals are
	// counted as high-confidence.
	HighConfidence = 0.8
)

// Precedence orders methods for merging: code > spec > ai.
func (m Method) Precedence() int {
	switch m {
	case MethodCode:
		return 3
	case MethodSpec:
		return 2
	case MethodAI:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether m is one of the known methods.
func (m Method) IsValid() bool { return m.Precedence() > 0 }

// Match is the outcome of matching one mesh part. The set of variants is
// closed: CodeMatch, SpecMatch, AIMatch and NoMatch.
type Match interface {
	PartID() string
	isMatch()
}

// CodeMatch pairs a part with the BOM row whose code appears in its name.
type CodeMatch struct {
	MeshID     string
	Code       string
	Confidence float64
}

// SpecMatch pairs a standard part with the first BOM row sharing its size
// token.
type SpecMatch struct {
	MeshID     string
	Code       string
	Spec       string
	Confidence float64
}

// AIMatch is a proposal from the fallback matcher.
type AIMatch struct {
	MeshID     string  `json:"mesh_id"`
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// NoMatch records a part the deterministic pass could not pair.
type NoMatch struct {
	MeshID string
}

func (m CodeMatch) PartID() string { return m.MeshID }
func (m SpecMatch) PartID() string { return m.MeshID }
func (m AIMatch) PartID() string { return m.MeshID }
func (m NoMatch) PartID() string { return m.MeshID }

func (CodeMatch) isMatch() {}
func (SpecMatch) isMatch() {}
func (AIMatch) isMatch() {}
func (NoMatch) isMatch() {}

// MatchCandidate is the flat, transient form of a Match used while merging.
type MatchCandidate struct {
	MeshID      string  `json:"mesh_id"`
	MatchedCode string  `json:"matched_code"`
	Method      Method  `json:"method"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale,omitempty"`
}

// Candidate projects m. NoMatch and variants without a code yield false.
func Candidate(m Match) (MatchCandidate, bool) {
	var c MatchCandidate
	switch v := m.(type) {
	case CodeMatch:
		c = MatchCandidate{MeshID: v.MeshID, MatchedCode: v.Code, Method: MethodCode, Confidence: v.Confidence}
	case SpecMatch:
		c = MatchCandidate{MeshID: v.MeshID, MatchedCode: v.Code, Method: MethodSpec, Confidence: v.Confidence}
	case AIMatch:
		c = MatchCandidate{MeshID: v.MeshID, MatchedCode: v.Code, Method: MethodAI, Confidence: v.Confidence, Rationale: v.Rationale}
	default:
		return MatchCandidate{}, false
	}
	if c.MatchedCode == "" || c.MeshID == "" {
		return MatchCandidate{}, false
	}
	return c, true
}
