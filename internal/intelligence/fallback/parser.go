package fallback

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
	pkgerrors "github.com/turtacn/BOMMesh/pkg/errors"
)

type replyEntry struct {
	Index          json.RawMessage `json:"index"`
	MeshID         string          `json:"mesh_id"`
	GeometryName   string          `json:"geometry_name"`
	MatchedBOMCode *string         `json:"matched_bom_code"`
	Confidence     json.RawMessage `json:"confidence"`
	Reason         string          `json:"reason"`
}

// ParseStats describes how a reply was consumed.
type ParseStats struct {
	Entries  int
	Accepted int
	Dropped  int
}

// ParseReply extracts proposals from a model reply. Entries are resolved to
// a residual part by mesh_id, then index, then exact geometry name. Entries
// that resolve to no part, name a code outside bomCodes, carry a confidence
// outside [0, 1] or repeat an already proposed part are dropped. An error is
// returned only when the reply holds no JSON array at all.
func ParseReply(raw string, parts []matching.ResidualPart, bomCodes map[string]struct{}) ([]matching.AIMatch, ParseStats, error) {
	var stats ParseStats

	body, ok := extractJSONArray(raw)
	if !ok {
		return nil, stats, pkgerrors.New(pkgerrors.ErrCodeFallbackReplyInvalid, "reply contains no JSON array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, stats, pkgerrors.Wrap(err, pkgerrors.ErrCodeFallbackReplyInvalid, "reply array is not valid JSON")
	}

	byMesh := make(map[string]int, len(parts))
	byName := make(map[string]int, len(parts))
	for i, p := range parts {
		byMesh[p.MeshID] = i
		if _, dup := byName[p.RawName]; !dup {
			byName[p.RawName] = i
		}
		if _, dup := byName[p.Name]; !dup && p.Name != "" {
			byName[p.Name] = i
		}
	}

	seen := make(map[string]struct{})
	var out []matching.AIMatch
	for _, item := range items {
		stats.Entries++
		var e replyEntry
		if err := json.Unmarshal(item, &e); err != nil {
			stats.Dropped++
			continue
		}
		pos, ok := resolvePart(e, byMesh, byName, len(parts))
		if !ok || e.MatchedBOMCode == nil {
			stats.Dropped++
			continue
		}
		code := strings.TrimSpace(*e.MatchedBOMCode)
		if _, known := bomCodes[code]; !known {
			stats.Dropped++
			continue
		}
		conf, ok := flexFloat(e.Confidence)
		if !ok || conf < 0 || conf > 1 {
			stats.Dropped++
			continue
		}
		meshID := parts[pos].MeshID
		if _, dup := seen[meshID]; dup {
			stats.Dropped++
			continue
		}
		seen[meshID] = struct{}{}
		out = append(out, matching.AIMatch{
			MeshID:     meshID,
			Code:       code,
			Confidence: conf,
			Rationale:  e.Reason,
		})
		stats.Accepted++
	}
	return out, stats, nil
}

func resolvePart(e replyEntry, byMesh, byName map[string]int, n int) (int, bool) {
	if e.MeshID != "" {
		if i, ok := byMesh[e.MeshID]; ok {
			return i, true
		}
	}
	if i, ok := flexInt(e.Index); ok && i >= 0 && i < n {
		return i, true
	}
	if e.GeometryName != "" {
		if i, ok := byName[e.GeometryName]; ok {
			return i, true
		}
	}
	return 0, false
}

// extractJSONArray strips markdown fences and returns the outermost array.
func extractJSONArray(raw string) (string, bool) {
	s := raw
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = rest[:j]
		} else {
			s = rest
		}
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func flexFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func flexInt(raw json.RawMessage) (int, bool) {
	f, ok := flexFloat(raw)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
