package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BOMMesh/pkg/errors"
)

func TestBOMRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     BOMRecord
		wantErr bool
	}{
		{"ok", BOMRecord{Code: "01.09.2549", Name: "后座组件", Quantity: 1}, false},
		{"name only", BOMRecord{Name: "垫圈"}, false},
		{"negative quantity", BOMRecord{Code: "01.09.2549", Quantity: -1}, true},
		{"negative weight", BOMRecord{Code: "01.09.2549", Weight: -0.5}, true},
		{"blank", BOMRecord{Code: " ", Name: ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr {
				assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidBOM))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewMeshParts_AssignsSequentialIDs(t *testing.T) {
	parts := NewMeshParts([]MeshNode{
		{NodeID: "NAUO1", Name: "a"},
		{NodeID: "NAUO2", Name: "b"},
	})
	assert.Equal(t, "mesh_001", parts[0].MeshID)
	assert.Equal(t, "mesh_002", parts[1].MeshID)
	assert.Equal(t, "NAUO2", parts[1].NodeID)
	assert.Equal(t, "b", parts[1].RawName)
}

func TestMeshID_WidensPastThreeDigits(t *testing.T) {
	assert.Equal(t, "mesh_999", MeshID(999))
	assert.Equal(t, "mesh_1000", MeshID(1000))
}

func TestMeshPart_Validate(t *testing.T) {
	assert.NoError(t, MeshPart{MeshID: "mesh_001", NodeID: "n"}.Validate())
	assert.NoError(t, MeshPart{MeshID: "mesh_001", RawName: "bolt"}.Validate())
	assert.True(t, errors.IsCode(MeshPart{NodeID: "n"}.Validate(), errors.ErrCodeInvalidMesh))
	assert.True(t, errors.IsCode(MeshPart{MeshID: "mesh_002", RawName: "  "}.Validate(), errors.ErrCodeInvalidMesh))
}

func TestValidNodes_DropsAnonymousNodes(t *testing.T) {
	kept, dropped := ValidNodes([]MeshNode{
		{NodeID: "n0", Name: "01.09.2549-后座组件"},
		{},
		{Name: "螺栓M16×80"},
		{NodeID: " "},
	})
	assert.Equal(t, 2, dropped)
	require.Len(t, kept, 2)
	assert.Equal(t, "n0", kept[0].NodeID)
	assert.Equal(t, "螺栓M16×80", kept[1].Name)

	parts := NewMeshParts(kept)
	assert.Equal(t, "mesh_002", parts[1].MeshID)
}

func TestMethod_Precedence(t *testing.T) {
	assert.Greater(t, MethodCode.Precedence(), MethodSpec.Precedence())
	assert.Greater(t, MethodSpec.Precedence(), MethodAI.Precedence())
	assert.False(t, Method("manual").IsValid())
}

func TestCandidate(t *testing.T) {
	c, ok := Candidate(CodeMatch{MeshID: "mesh_001", Code: "01.09.2549", Confidence: CodeConfidence})
	assert.True(t, ok)
	assert.Equal(t, MatchCandidate{MeshID: "mesh_001", MatchedCode: "01.09.2549", Method: MethodCode, Confidence: 0.95}, c)

	c, ok = Candidate(AIMatch{MeshID: "mesh_002", Code: "X", Confidence: 0.7, Rationale: "shape"})
	assert.True(t, ok)
	assert.Equal(t, MethodAI, c.Method)
	assert.Equal(t, "shape", c.Rationale)

	_, ok = Candidate(NoMatch{MeshID: "mesh_003"})
	assert.False(t, ok)

	_, ok = Candidate(AIMatch{MeshID: "mesh_004"})
	assert.False(t, ok)
}
