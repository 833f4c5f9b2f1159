// Package glb reads the part nodes of binary glTF assembly files.
package glb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
)

const (
	magicGLTF     uint32 = 0x46546C67 // "glTF"
	chunkTypeJSON uint32 = 0x4E4F534A // "JSON"
	headerSize           = 12
	chunkHdrSize         = 8

	// maxJSONChunk bounds the scene description read into memory.
	maxJSONChunk = 64 << 20
)

type document struct {
	Scene  *int `json:"scene"`
	Scenes []struct {
		Nodes []int `json:"nodes"`
	} `json:"scenes"`
	Nodes []struct {
		Name     string `json:"name"`
		Mesh     *int   `json:"mesh"`
		Children []int  `json:"children"`
	} `json:"nodes"`
	Meshes []struct {
		Name string `json:"name"`
	} `json:"meshes"`
}

// Decode returns the geometry-bearing nodes of a GLB stream in scene-graph
// order (depth first from the default scene's roots). Only the JSON chunk is
// read; the binary buffer is ignored.
func Decode(r io.Reader) ([]matching.MeshNode, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("glb: short header: %w", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != magicGLTF {
		return nil, fmt.Errorf("glb: bad magic")
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != 2 {
		return nil, fmt.Errorf("glb: unsupported version %d", v)
	}

	var chdr [chunkHdrSize]byte
	if _, err := io.ReadFull(r, chdr[:]); err != nil {
		return nil, fmt.Errorf("glb: missing JSON chunk: %w", err)
	}
	length := binary.LittleEndian.Uint32(chdr[0:4])
	if binary.LittleEndian.Uint32(chdr[4:8]) != chunkTypeJSON {
		return nil, fmt.Errorf("glb: first chunk is not JSON")
	}
	if length > maxJSONChunk {
		return nil, fmt.Errorf("glb: JSON chunk of %d bytes too large", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("glb: truncated JSON chunk: %w", err)
	}

	var doc document
	if err := json.Unmarshal(bytes.TrimRight(buf, " \x00"), &doc); err != nil {
		return nil, fmt.Errorf("glb: invalid scene JSON: %w", err)
	}
	return doc.meshNodes()
}

func (d *document) meshNodes() ([]matching.MeshNode, error) {
	order, err := d.traversal()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(order))
	out := make([]matching.MeshNode, 0, len(order))
	for _, idx := range order {
		n := d.Nodes[idx]
		if n.Mesh == nil {
			continue
		}
		name := n.Name
		if name == "" && *n.Mesh >= 0 && *n.Mesh < len(d.Meshes) {
			name = d.Meshes[*n.Mesh].Name
		}
		if name == "" {
			name = fmt.Sprintf("node_%d", idx)
		}
		id := name
		if c := seen[name]; c > 0 {
			id = fmt.Sprintf("%s_%d", name, c)
		}
		seen[name]++
		out = append(out, matching.MeshNode{NodeID: id, Name: name})
	}
	return out, nil
}

// traversal lists node indices depth first from the default scene. Files
// without scenes fall back to index order. Each node is visited once.
func (d *document) traversal() ([]int, error) {
	if len(d.Scenes) == 0 {
		all := make([]int, len(d.Nodes))
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	scene := 0
	if d.Scene != nil {
		scene = *d.Scene
	}
	if scene < 0 || scene >= len(d.Scenes) {
		return nil, fmt.Errorf("glb: default scene %d out of range", scene)
	}

	visited := make([]bool, len(d.Nodes))
	var order []int
	var walk func(i int) error
	walk = func(i int) error {
		if i < 0 || i >= len(d.Nodes) {
			return fmt.Errorf("glb: node index %d out of range", i)
		}
		if visited[i] {
			return nil
		}
		visited[i] = true
		order = append(order, i)
		for _, c := range d.Nodes[i].Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range d.Scenes[scene].Nodes {
		if err := walk(root); err != nil {
			return nil, err
		}
	}
	return order, nil
}
