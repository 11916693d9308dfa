package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// RunsClient covers the run, report, and analytics endpoints.
type RunsClient struct {
	client *Client
}

// Run is one analysis run registry entry.
type Run struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	AnswersSource string     `json:"answers_source,omitempty"`
	TokensSource  string     `json:"tokens_source,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// QuestionMetrics is one per-question metrics row.
type QuestionMetrics struct {
	QuestionID      string  `json:"question_id"`
	AvgControversy  float64 `json:"avg_controversy"`
	ScoredAnswers   int     `json:"scored_answers"`
	TotalAnswers    int     `json:"total_answers"`
	TotalEngagement int64   `json:"total_engagement"`
}

// AnswerScore is one per-answer controversy score.
type AnswerScore struct {
	AnswerID   string  `json:"answer_id"`
	QuestionID string  `json:"question_id"`
	Score      float64 `json:"score"`
	GroupSize  int     `json:"group_size"`
}

// Pagination mirrors the server's pagination envelope.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total,omitempty"`
}

// RunList is a page of runs.
type RunList struct {
	Items      []Run      `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// QuestionMetricsList is a page of question metrics.
type QuestionMetricsList struct {
	Items      []QuestionMetrics `json:"items"`
	Pagination Pagination        `json:"pagination"`
}

// Report is the full analysis report. The nested structure is kept as raw
// JSON so the SDK does not chase the server's report schema.
type Report = json.RawMessage

// ListOptions control pagination.
type ListOptions struct {
	Page     int
	PageSize int
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// List returns a page of runs, most recent first.
func (rc *RunsClient) List(ctx context.Context, opts ListOptions) (*RunList, error) {
	var out RunList
	if err := rc.client.get(ctx, "/api/v1/runs"+opts.query(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns one run by ID.
func (rc *RunsClient) Get(ctx context.Context, runID string) (*Run, error) {
	var out Run
	if err := rc.client.get(ctx, "/api/v1/runs/"+url.PathEscape(runID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Report returns the full report of a run.
func (rc *RunsClient) Report(ctx context.Context, runID string) (Report, error) {
	var out json.RawMessage
	if err := rc.client.get(ctx, fmt.Sprintf("/api/v1/runs/%s/report", url.PathEscape(runID)), &out); err != nil {
		return nil, err
	}
	return Report(out), nil
}

// LatestReport returns the report of the most recent completed run.
func (rc *RunsClient) LatestReport(ctx context.Context) (Report, error) {
	var out json.RawMessage
	if err := rc.client.get(ctx, "/api/v1/reports/latest", &out); err != nil {
		return nil, err
	}
	return Report(out), nil
}

// DownloadURL returns a presigned URL for the archived report object.
func (rc *RunsClient) DownloadURL(ctx context.Context, runID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := rc.client.get(ctx, fmt.Sprintf("/api/v1/runs/%s/report/download", url.PathEscape(runID)), &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Questions returns a page of per-question metrics, most controversial first.
func (rc *RunsClient) Questions(ctx context.Context, runID string, opts ListOptions) (*QuestionMetricsList, error) {
	var out QuestionMetricsList
	if err := rc.client.get(ctx, fmt.Sprintf("/api/v1/runs/%s/questions%s", url.PathEscape(runID), opts.query()), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Scores returns the per-answer scores of one question.
func (rc *RunsClient) Scores(ctx context.Context, runID, questionID string) ([]AnswerScore, error) {
	var out struct {
		Items []AnswerScore `json:"items"`
	}
	path := fmt.Sprintf("/api/v1/runs/%s/questions/%s/scores", url.PathEscape(runID), url.PathEscape(questionID))
	if err := rc.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Leaderboard returns the most controversial questions of a run.
func (rc *RunsClient) Leaderboard(ctx context.Context, runID string, limit int) ([]QuestionMetrics, error) {
	path := fmt.Sprintf("/api/v1/runs/%s/leaderboard", url.PathEscape(runID))
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []QuestionMetrics `json:"items"`
	}
	if err := rc.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Correlation returns the correlation table of a run as raw JSON.
func (rc *RunsClient) Correlation(ctx context.Context, runID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := rc.client.get(ctx, fmt.Sprintf("/api/v1/runs/%s/correlation", url.PathEscape(runID)), &out); err != nil {
		return nil, err
	}
	return out, nil
}
