package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runsTestServer(t *testing.T) (*httptest.Server, *http.Request) {
	t.Helper()
	captured := &http.Request{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = *r.Clone(r.Context())
		switch r.URL.Path {
		case "/api/v1/runs":
			fmt.Fprint(w, `{"items":[{"id":"run-1","status":"completed"},{"id":"run-2","status":"failed"}],"pagination":{"page":1,"page_size":20,"total":2}}`)
		case "/api/v1/runs/run-1":
			fmt.Fprint(w, `{"id":"run-1","status":"completed","answers_source":"answers.tsv"}`)
		case "/api/v1/runs/run-1/report":
			fmt.Fprint(w, `{"run_id":"run-1","status":"completed"}`)
		case "/api/v1/reports/latest":
			fmt.Fprint(w, `{"run_id":"run-9","status":"completed"}`)
		case "/api/v1/runs/run-1/report/download":
			fmt.Fprint(w, `{"url":"http://minio.local/reports/run-1.json?sig=abc"}`)
		case "/api/v1/runs/run-1/questions":
			fmt.Fprint(w, `{"items":[{"question_id":"q1","avg_controversy":0.42,"scored_answers":3,"total_answers":4,"total_engagement":120}],"pagination":{"page":1,"page_size":20,"total":1}}`)
		case "/api/v1/runs/run-1/questions/q1/scores":
			fmt.Fprint(w, `{"items":[{"answer_id":"a1","question_id":"q1","score":0.5,"group_size":3}]}`)
		case "/api/v1/runs/run-1/leaderboard":
			fmt.Fprint(w, `{"items":[{"question_id":"q7","avg_controversy":0.9}]}`)
		case "/api/v1/runs/run-1/correlation":
			fmt.Fprint(w, `{"pearson":0.31,"spearman":0.28}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"code":"RUN_NOT_FOUND","message":"not found"}`)
		}
	}))
	return srv, captured
}

func TestRunsClient_List(t *testing.T) {
	srv, captured := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	list, err := c.Runs().List(context.Background(), ListOptions{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "run-1", list.Items[0].ID)
	assert.Equal(t, "completed", list.Items[0].Status)
	assert.Equal(t, int64(2), list.Pagination.Total)
	assert.Equal(t, "1", captured.URL.Query().Get("page"))
	assert.Equal(t, "20", captured.URL.Query().Get("page_size"))
}

func TestRunsClient_List_NoPaginationParams(t *testing.T) {
	srv, captured := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Runs().List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, captured.URL.RawQuery)
}

func TestRunsClient_Get(t *testing.T) {
	srv, _ := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	run, err := c.Runs().Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "answers.tsv", run.AnswersSource)
}

func TestRunsClient_Get_NotFound(t *testing.T) {
	srv, _ := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Runs().Get(context.Background(), "run-unknown")
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsNotFound())
}

func TestRunsClient_Report(t *testing.T) {
	srv, _ := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	report, err := c.Runs().Report(context.Background(), "run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"run-1","status":"completed"}`, string(report))
}

func TestRunsClient_LatestReport(t *testing.T) {
	srv, _ := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	report, err := c.Runs().LatestReport(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(report), "run-9")
}

func TestRunsClient_DownloadURL(t *testing.T) {
	srv, _ := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	u, err := c.Runs().DownloadURL(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "http://minio.local/reports/run-1.json?sig=abc", u)
}

func TestRunsClient_Questions(t *testing.T) {
	srv, captured := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	page, err := c.Runs().Questions(context.Background(), "run-1", ListOptions{PageSize: 50})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "q1", page.Items[0].QuestionID)
	assert.InDelta(t, 0.42, page.Items[0].AvgControversy, 1e-9)
	assert.Equal(t, int64(120), page.Items[0].TotalEngagement)
	assert.Equal(t, "50", captured.URL.Query().Get("page_size"))
}

func TestRunsClient_Scores(t *testing.T) {
	srv, _ := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	scores, err := c.Runs().Scores(context.Background(), "run-1", "q1")
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "a1", scores[0].AnswerID)
	assert.Equal(t, 3, scores[0].GroupSize)
}

func TestRunsClient_Leaderboard(t *testing.T) {
	srv, captured := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	items, err := c.Runs().Leaderboard(context.Background(), "run-1", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "q7", items[0].QuestionID)
	assert.Equal(t, "5", captured.URL.Query().Get("limit"))
}

func TestRunsClient_Correlation(t *testing.T) {
	srv, _ := runsTestServer(t)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	raw, err := c.Runs().Correlation(context.Background(), "run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pearson":0.31,"spearman":0.28}`, string(raw))
}

func TestRunsClient_EscapesPathSegments(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Runs().Get(context.Background(), "run/../etc")
	require.Error(t, err)
	assert.Equal(t, "/api/v1/runs/run%2F..%2Fetc", gotPath)
}
