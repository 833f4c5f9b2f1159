package fallback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
)

const systemPrompt = `You are a BOM-to-3D part matching expert. You pair part names taken from a 3D assembly model with rows of a bill of materials. Answer with a JSON array only.`

const userPromptTemplate = `## Background
- 3D part names may still contain encoding damage; use product codes, size specifications (M16, Φ40, 16×3) and part type keywords (bolt, washer, plate) as clues.
- BOM rows carry a code, a product code and a name.
- Scope: {{.Scope}}

## BOM ({{.TotalBOM}} rows{{if .Truncated}}, first {{len .BOM}} shown{{end}})
` + "```json" + `
{{json .BOM}}
` + "```" + `

## Unmatched 3D parts ({{len .Parts}})
` + "```json" + `
{{json .Parts}}
` + "```" + `

## Rules
1. Prefer a product code found in the part name.
2. Match standard parts by specification.
3. Use part type keywords as supporting evidence.
4. If no BOM row fits, set matched_bom_code to null.
5. Only use codes that appear in the BOM above.

## Output
A JSON array with one element per part:
- index: the part index from the input
- mesh_id: the part mesh_id from the input
- geometry_name: the part name exactly as given
- matched_bom_code: the BOM code, or null
- confidence: a number between 0 and 1
- reason: a short justification
`

type promptBOM struct {
	Code        string `json:"code"`
	ProductCode string `json:"product_code,omitempty"`
	Name        string `json:"name"`
}

type promptPart struct {
	Index     int    `json:"index"`
	MeshID    string `json:"mesh_id"`
	FixedName string `json:"fixed_name"`
	RawName   string `json:"geometry_name"`
}

type promptData struct {
	Scope     string
	TotalBOM  int
	Truncated bool
	BOM       []promptBOM
	Parts     []promptPart
}

// PromptBuilder renders the fallback prompt.
type PromptBuilder struct {
	tmpl        *template.Template
	maxBOMItems int
}

// NewPromptBuilder parses the built-in template. BOM rows beyond
// maxBOMItems are left out of the prompt; 0 means no cap.
func NewPromptBuilder(maxBOMItems int) (*PromptBuilder, error) {
	funcs := template.FuncMap{
		"json": func(v interface{}) (string, error) {
			b, err := json.MarshalIndent(v, "", "  ")
			return string(b), err
		},
	}
	tmpl, err := template.New("fallback_user").Funcs(funcs).Parse(userPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing fallback prompt: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl, maxBOMItems: maxBOMItems}, nil
}

// System returns the system prompt.
func (b *PromptBuilder) System() string { return systemPrompt }

// Build renders the user prompt for req. Parts are indexed in request order.
func (b *PromptBuilder) Build(req matching.ProposalRequest) (string, error) {
	data := promptData{
		Scope:    req.Scope.String(),
		TotalBOM: len(req.BOM),
	}
	rows := req.BOM
	if b.maxBOMItems > 0 && len(rows) > b.maxBOMItems {
		rows = rows[:b.maxBOMItems]
		data.Truncated = true
	}
	data.BOM = make([]promptBOM, 0, len(rows))
	for _, r := range rows {
		data.BOM = append(data.BOM, promptBOM{Code: r.Code, ProductCode: r.ProductCode, Name: r.Name})
	}
	data.Parts = make([]promptPart, 0, len(req.Parts))
	for i, p := range req.Parts {
		data.Parts = append(data.Parts, promptPart{Index: i, MeshID: p.MeshID, FixedName: p.Name, RawName: p.RawName})
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering fallback prompt: %w", err)
	}
	return buf.String(), nil
}
