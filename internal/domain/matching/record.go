// Package matching holds the BOM-to-mesh matching domain: input records,
// tagged match variants, the scope-local index, the deterministic matcher,
// hierarchy partitioning, merge policy and the per-scope report.
package matching

import (
	"fmt"
	"strings"

	"github.com/turtacn/BOMMesh/pkg/errors"
)

// BOMRecord is one parts-list line as produced by the upstream extractor.
// It is never mutated during matching.
type BOMRecord struct {
	Seq         string  `json:"seq,omitempty"`
	Code        string  `json:"code"`
	ProductCode string  `json:"product_code,omitempty"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	Weight      float64 `json:"weight"`
	SourceScope string  `json:"source_scope"`
}

// Validate rejects rows that cannot take part in matching.
func (r BOMRecord) Validate() error {
	if r.Quantity < 0 {
		return errors.New(errors.ErrCodeInvalidBOM, "quantity must be >= 0").
			WithDetail(fmt.Sprintf("code=%q quantity=%d", r.Code, r.Quantity))
	}
	if r.Weight < 0 {
		return errors.New(errors.ErrCodeInvalidBOM, "weight must be >= 0").
			WithDetail(fmt.Sprintf("code=%q weight=%g", r.Code, r.Weight))
	}
	if strings.TrimSpace(r.Code) == "" && strings.TrimSpace(r.Name) == "" {
		return errors.New(errors.ErrCodeInvalidBOM, "record has neither code nor name")
	}
	return nil
}

// HasCode reports whether the record can be a key of a MatchMapping.
func (r BOMRecord) HasCode() bool { return r.Code != "" }

// MeshNode is a scene-graph node as read from an assembly file, before a
// mesh id has been assigned.
type MeshNode struct {
	NodeID string `json:"node_id"`
	Name   string `json:"name"`
}

// MeshPart is one geometry node of a scope's assembly file.
type MeshPart struct {
	NodeID  string `json:"node_id"`
	RawName string `json:"raw_name"`
	MeshID  string `json:"mesh_id"`
}

// Validate rejects nodes with neither a node id nor a name.
func (n MeshNode) Validate() error {
	if strings.TrimSpace(n.NodeID) == "" && strings.TrimSpace(n.Name) == "" {
		return errors.New(errors.ErrCodeInvalidMesh, "mesh node has neither node id nor name")
	}
	return nil
}

// ValidNodes keeps the nodes that pass Validate, in order, and reports how
// many were dropped.
func ValidNodes(nodes []MeshNode) ([]MeshNode, int) {
	kept := make([]MeshNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Validate() == nil {
			kept = append(kept, n)
		}
	}
	return kept, len(nodes) - len(kept)
}

// Validate rejects parts without a mesh id or without any identity.
func (p MeshPart) Validate() error {
	if p.MeshID == "" {
		return errors.New(errors.ErrCodeInvalidMesh, "mesh part has no mesh id").
			WithDetail(fmt.Sprintf("node_id=%q", p.NodeID))
	}
	if strings.TrimSpace(p.NodeID) == "" && strings.TrimSpace(p.RawName) == "" {
		return errors.New(errors.ErrCodeInvalidMesh, "mesh part has neither node id nor name").
			WithDetail(fmt.Sprintf("mesh_id=%q", p.MeshID))
	}
	return nil
}

// MeshID formats the sequential identifier of the seq-th part (1-based).
func MeshID(seq int) string {
	return fmt.Sprintf("mesh_%03d", seq)
}

// NewMeshParts assigns mesh ids to nodes in input order.
func NewMeshParts(nodes []MeshNode) []MeshPart {
	parts := make([]MeshPart, len(nodes))
	for i, n := range nodes {
		parts[i] = MeshPart{
			NodeID:  n.NodeID,
			RawName: n.Name,
			MeshID:  MeshID(i + 1),
		}
	}
	return parts
}
