package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

const (
	reportPrefix      = "runs/"
	reportContentType = "application/json"
)

// ReportKey is the object key of a run's report.
func ReportKey(runID uuid.UUID) string {
	return reportPrefix + runID.String() + ".json"
}

type reportStore struct {
	client *Client
	logger logging.Logger
}

// NewReportStore returns a matching.ReportStore writing to the client's
// bucket.
func NewReportStore(client *Client, log logging.Logger) matching.ReportStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &reportStore{client: client, logger: log}
}

// Put uploads the report as indented JSON and returns its s3:// URI.
func (s *reportStore) Put(ctx context.Context, report *matching.Report) (string, error) {
	if report == nil || report.RunID == uuid.Nil {
		return "", errors.InvalidParam("report with run id is required")
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode report")
	}

	key := ReportKey(report.RunID)
	opts := minio.PutObjectOptions{
		ContentType: reportContentType,
		UserMetadata: map[string]string{
			"run-id":        report.RunID.String(),
			"matching-rate": fmt.Sprintf("%.4f", report.Summary.MatchingRate),
		},
	}
	info, err := s.client.api.PutObject(ctx, s.client.Bucket(), key, bytes.NewReader(body), int64(len(body)), opts)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "report upload failed")
	}

	uri := fmt.Sprintf("s3://%s/%s", s.client.Bucket(), key)
	s.logger.Debug("Report archived",
		logging.RunID(report.RunID.String()),
		logging.String("uri", uri),
		logging.Int64("size", info.Size))
	return uri, nil
}

// ReportExists reports whether a run's report has been archived.
func (c *Client) ReportExists(ctx context.Context, runID uuid.UUID) (bool, error) {
	_, err := c.api.StatObject(ctx, c.Bucket(), ReportKey(runID), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeInternal, "report stat failed")
}
