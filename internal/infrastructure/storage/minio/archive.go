package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

const (
	archivePrefix = "reports"
	reportSuffix  = ".json"
)

// ArchivedReport describes one stored report object.
type ArchivedReport struct {
	RunID      common.ID `json:"run_id"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ReportArchive stores full analysis reports as JSON objects, one per run.
// It implements pipeline.ReportArchive.
type ReportArchive struct {
	client *Client
	logger logging.Logger
}

// NewReportArchive builds the archive on an established client.
func NewReportArchive(client *Client, log logging.Logger) *ReportArchive {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ReportArchive{client: client, logger: log.Named("minio.archive")}
}

// ReportKey returns the object key of a run's report.
func ReportKey(runID common.ID) string {
	return path.Join(archivePrefix, string(runID)+reportSuffix)
}

// Archive uploads the report and returns the object key it was stored under.
func (a *ReportArchive) Archive(ctx context.Context, report *pipeline.AnalysisReport) (string, error) {
	if a.client.isClosed() {
		return "", ErrClientClosed
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal report")
	}

	key := ReportKey(report.RunID)
	_, err = a.client.api.PutObject(ctx, a.client.cfg.Bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to upload report")
	}

	a.logger.Info("Report archived",
		logging.String("run_id", string(report.RunID)),
		logging.String("key", key),
		logging.Int("bytes", len(data)),
	)
	return key, nil
}

// Fetch downloads and decodes the report of one run.
func (a *ReportArchive) Fetch(ctx context.Context, runID common.ID) (*pipeline.AnalysisReport, error) {
	if a.client.isClosed() {
		return nil, ErrClientClosed
	}

	obj, err := a.client.api.GetObject(ctx, a.client.cfg.Bucket, ReportKey(runID), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to fetch report object")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.Newf(errors.ErrCodeReportNotFound, "no archived report for run %s", runID)
		}
		return nil, errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to read report object")
	}

	report := &pipeline.AnalysisReport{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal archived report")
	}
	return report, nil
}

// DownloadURL returns a presigned GET URL for a run's report.
func (a *ReportArchive) DownloadURL(ctx context.Context, runID common.ID) (string, error) {
	if a.client.isClosed() {
		return "", ErrClientClosed
	}

	expiry := a.client.cfg.PresignExpiry
	if expiry == 0 {
		expiry = 15 * time.Minute
	}

	// Fail with a clean not-found instead of handing out a URL to nothing.
	if _, err := a.client.api.StatObject(ctx, a.client.cfg.Bucket, ReportKey(runID), minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", errors.Newf(errors.ErrCodeReportNotFound, "no archived report for run %s", runID)
		}
		return "", errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to stat report object")
	}

	u, err := a.client.api.PresignedGetObject(ctx, a.client.cfg.Bucket, ReportKey(runID), expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeArchiveFailed, "failed to presign report url")
	}
	return u.String(), nil
}

// List returns the archived reports, newest first by modification time.
func (a *ReportArchive) List(ctx context.Context) ([]*ArchivedReport, error) {
	if a.client.isClosed() {
		return nil, ErrClientClosed
	}

	objects := a.client.api.ListObjects(ctx, a.client.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    archivePrefix + "/",
		Recursive: true,
	})

	var reports []*ArchivedReport
	for obj := range objects {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeArchiveFailed, "failed to list archived reports")
		}
		base := path.Base(obj.Key)
		if !strings.HasSuffix(base, reportSuffix) {
			continue
		}
		reports = append(reports, &ArchivedReport{
			RunID:      common.ID(strings.TrimSuffix(base, reportSuffix)),
			Key:        obj.Key,
			Size:       obj.Size,
			ArchivedAt: obj.LastModified,
		})
	}
	return reports, nil
}

// Delete removes the archived report of one run.
func (a *ReportArchive) Delete(ctx context.Context, runID common.ID) error {
	if a.client.isClosed() {
		return ErrClientClosed
	}
	err := a.client.api.RemoveObject(ctx, a.client.cfg.Bucket, ReportKey(runID), minio.RemoveObjectOptions{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveFailed,
			fmt.Sprintf("failed to delete report of run %s", runID))
	}
	return nil
}
