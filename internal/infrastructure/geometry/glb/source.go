package glb

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// FileSource loads mesh parts from .glb files or .json part lists on local
// disk. Relative paths resolve against Root, and when Root is set no path
// may leave it.
type FileSource struct {
	Root   string
	logger logging.Logger
}

// NewFileSource returns a FileSource rooted at root ("" means the working
// directory).
func NewFileSource(root string, log logging.Logger) *FileSource {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &FileSource{Root: root, logger: log}
}

var _ matching.MeshSource = (*FileSource)(nil)

// Load implements matching.MeshSource. Mesh ids follow scene order.
func (s *FileSource) Load(ctx context.Context, modelFile string) ([]matching.MeshPart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(modelFile)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeModelFileNotFound, "model file not found: %s", modelFile)
		}
		return nil, errors.Wrapf(err, errors.ErrCodeModelFileInvalid, "cannot open %s", modelFile)
	}
	defer f.Close()

	var nodes []matching.MeshNode
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		nodes, err = decodePartList(f)
	default:
		nodes, err = Decode(f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeModelFileInvalid, "cannot decode %s", modelFile)
	}

	s.logger.Debug("Model file loaded", logging.String("file", modelFile), logging.Int("parts", len(nodes)))
	return matching.NewMeshParts(nodes), nil
}

// resolve maps modelFile onto disk, rejecting paths outside Root.
func (s *FileSource) resolve(modelFile string) (string, error) {
	if s.Root == "" {
		return modelFile, nil
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrCodeInvalidPlan, "cannot resolve model root %s", s.Root)
	}
	path := modelFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil || !filepath.IsLocal(rel) {
		return "", errors.Newf(errors.ErrCodeInvalidPlan, "model file %s is outside the model root", modelFile)
	}
	return filepath.Join(root, rel), nil
}

// decodePartList accepts either [{"node_id":..,"name":..}] or a bare list of
// names; in the latter form the name doubles as node id.
func decodePartList(f *os.File) ([]matching.MeshNode, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, err
	}
	nodes := make([]matching.MeshNode, 0, len(raw))
	for _, r := range raw {
		var name string
		if err := json.Unmarshal(r, &name); err == nil {
			nodes = append(nodes, matching.MeshNode{NodeID: name, Name: name})
			continue
		}
		var n matching.MeshNode
		if err := json.Unmarshal(r, &n); err != nil {
			return nil, err
		}
		if n.NodeID == "" {
			n.NodeID = n.Name
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
