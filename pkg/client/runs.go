package client

import (
	"context"
	"fmt"
	"net/url"

	appmatching "github.com/turtacn/BOMMesh/internal/application/matching"
	"github.com/turtacn/BOMMesh/internal/domain/matching"
)

const runsPath = "/api/v1/matching/runs"

// RunsClient covers /api/v1/matching/runs.
type RunsClient struct {
	client *Client
}

// RunList is the body of GET /runs.
type RunList struct {
	Runs  []matching.RunSummary `json:"runs"`
	Count int                   `json:"count"`
}

// Submit executes a run on the server and returns its report. Model files
// named in req resolve on the server.
func (r *RunsClient) Submit(ctx context.Context, req *appmatching.RunRequest) (*matching.Report, error) {
	var report matching.Report
	if err := r.client.post(ctx, runsPath, req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Get fetches a stored report.
func (r *RunsClient) Get(ctx context.Context, runID string) (*matching.Report, error) {
	var report matching.Report
	if err := r.client.get(ctx, runsPath+"/"+url.PathEscape(runID), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// List returns up to limit recent runs, newest first; limit <= 0 uses the
// server default.
func (r *RunsClient) List(ctx context.Context, limit int) (*RunList, error) {
	path := runsPath
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", runsPath, limit)
	}
	var list RunList
	if err := r.client.get(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
