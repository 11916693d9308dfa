package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/Controversy-Insight/internal/domain/controversy"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

// scoreMapping is the index mapping for per-answer score documents.
const scoreMapping = `{
	"mappings": {
		"properties": {
			"run_id":      {"type": "keyword"},
			"answer_id":   {"type": "keyword"},
			"question_id": {"type": "keyword"},
			"score":       {"type": "double"},
			"group_size":  {"type": "integer"},
			"indexed_at":  {"type": "date"}
		}
	}
}`

// scoreDocument is one indexed answer score.
type scoreDocument struct {
	RunID      string    `json:"run_id"`
	AnswerID   string    `json:"answer_id"`
	QuestionID string    `json:"question_id"`
	Score      float64   `json:"score"`
	GroupSize  int       `json:"group_size"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// BulkItemError ties one failed document to its bulk error.
type BulkItemError struct {
	DocID  string
	Type   string
	Reason string
}

// ScoreIndexer bulk-indexes answer scores. It implements pipeline.ScoreIndex.
type ScoreIndexer struct {
	client    *Client
	logger    logging.Logger
	index     string
	batchSize int
}

// NewScoreIndexer builds the indexer; index name and batch size come from
// the client's configuration.
func NewScoreIndexer(client *Client, log logging.Logger) *ScoreIndexer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	prefix := client.cfg.IndexPrefix
	if prefix == "" {
		prefix = "controversy-"
	}
	batchSize := client.cfg.BulkBatchSize
	if batchSize == 0 {
		batchSize = 500
	}
	return &ScoreIndexer{
		client:    client,
		logger:    log.Named("opensearch.scores"),
		index:     prefix + "answer-scores",
		batchSize: batchSize,
	}
}

// IndexName returns the target index.
func (i *ScoreIndexer) IndexName() string { return i.index }

// EnsureIndex creates the scores index when absent.
func (i *ScoreIndexer) EnsureIndex(ctx context.Context) error {
	existsReq := opensearchapi.IndicesExistsRequest{Index: []string{i.index}}
	resp, err := existsReq.Do(ctx, i.client.OS())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexFailed, "failed to check index")
	}
	defer resp.Body.Close()
	if resp.StatusCode == 200 {
		return nil
	}

	createReq := opensearchapi.IndicesCreateRequest{
		Index: i.index,
		Body:  strings.NewReader(scoreMapping),
	}
	createResp, err := createReq.Do(ctx, i.client.OS())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexFailed, "failed to create index")
	}
	defer createResp.Body.Close()

	if createResp.IsError() {
		return errorFromResponse(createResp, "index creation failed")
	}
	i.logger.Info("Index created", logging.String("index", i.index))
	return nil
}

// IndexScores bulk-indexes the scores of one run in batches. Document ids are
// run-scoped so re-running a stored run overwrites instead of duplicating.
func (i *ScoreIndexer) IndexScores(ctx context.Context, runID common.ID, scores []*controversy.AnswerScore) error {
	if len(scores) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var itemErrors []BulkItemError

	for start := 0; start < len(scores); start += i.batchSize {
		end := start + i.batchSize
		if end > len(scores) {
			end = len(scores)
		}

		var buf bytes.Buffer
		for _, sc := range scores[start:end] {
			docID := fmt.Sprintf("%s:%s", runID, sc.AnswerID)
			meta := fmt.Sprintf(`{"index":{"_index":%q,"_id":%q}}`, i.index, docID)
			buf.WriteString(meta)
			buf.WriteByte('\n')

			doc, err := json.Marshal(scoreDocument{
				RunID:      string(runID),
				AnswerID:   sc.AnswerID,
				QuestionID: sc.QuestionID,
				Score:      sc.Score,
				GroupSize:  sc.GroupSize,
				IndexedAt:  now,
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal score document")
			}
			buf.Write(doc)
			buf.WriteByte('\n')
		}

		batchErrors, err := i.sendBulk(ctx, &buf)
		if err != nil {
			return err
		}
		itemErrors = append(itemErrors, batchErrors...)
	}

	if len(itemErrors) > 0 {
		i.logger.Warn("bulk indexing finished with failures",
			logging.String("run_id", string(runID)),
			logging.Int("failed", len(itemErrors)),
		)
		return errors.Newf(errors.ErrCodeIndexFailed, "%d of %d score documents failed", len(itemErrors), len(scores))
	}

	i.logger.Debug("answer scores indexed",
		logging.String("run_id", string(runID)),
		logging.Int("documents", len(scores)),
	)
	return nil
}

func (i *ScoreIndexer) sendBulk(ctx context.Context, body io.Reader) ([]BulkItemError, error) {
	req := opensearchapi.BulkRequest{Body: body}
	resp, err := req.Do(ctx, i.client.OS())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIndexFailed, "bulk request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, errorFromResponse(resp, "bulk batch failed")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}
	if !bulkResp.Errors {
		return nil, nil
	}

	var itemErrors []BulkItemError
	for _, item := range bulkResp.Items {
		for _, detail := range item {
			if detail.Status >= 300 {
				itemErrors = append(itemErrors, BulkItemError{
					DocID:  detail.ID,
					Type:   detail.Error.Type,
					Reason: detail.Error.Reason,
				})
			}
		}
	}
	return itemErrors, nil
}

func errorFromResponse(resp *opensearchapi.Response, msg string) error {
	body, _ := io.ReadAll(resp.Body)
	return errors.Newf(errors.ErrCodeIndexFailed, "%s: status %d: %s", msg, resp.StatusCode, string(body))
}
