package repositories

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/domain/controversy"
	driver "github.com/turtacn/Controversy-Insight/internal/infrastructure/database/neo4j"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

// nodeBatchSize bounds UNWIND payloads so a large run does not produce one
// oversized transaction.
const nodeBatchSize = 1000

// DisagreementEdge is one answer pair with its cosine distance, as read back
// from the graph.
type DisagreementEdge struct {
	QuestionID string  `json:"question_id"`
	AnswerA    string  `json:"answer_a"`
	AnswerB    string  `json:"answer_b"`
	Distance   float64 `json:"distance"`
}

// GraphRepo materializes the disagreement graph: Question and Answer nodes,
// BELONGS_TO ownership edges, and DISAGREES_WITH edges weighted by pairwise
// cosine distance. It implements pipeline.GraphWriter.
type GraphRepo struct {
	driver driver.DriverInterface
	logger logging.Logger
}

// NewGraphRepo constructs a GraphRepo.
func NewGraphRepo(d driver.DriverInterface, log logging.Logger) *GraphRepo {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &GraphRepo{
		driver: d,
		logger: log.Named("graph"),
	}
}

// WriteGraph upserts the question nodes of a run, the answer nodes referenced
// by its pair distances, and one DISAGREES_WITH edge per scored pair. Nodes
// are keyed by their natural IDs so repeated runs update in place; edges are
// keyed per run so each run keeps its own weights.
func (r *GraphRepo) WriteGraph(ctx context.Context, runID common.ID, metrics []*analytics.QuestionMetrics, pairs []*controversy.PairDistance) error {
	if len(metrics) == 0 && len(pairs) == 0 {
		return nil
	}

	if err := r.writeQuestionNodes(ctx, runID, metrics); err != nil {
		return err
	}
	if err := r.writeDisagreementEdges(ctx, runID, pairs); err != nil {
		return err
	}

	r.logger.Info("disagreement graph written",
		logging.String("run_id", string(runID)),
		logging.Int("questions", len(metrics)),
		logging.Int("pairs", len(pairs)),
	)
	return nil
}

func (r *GraphRepo) writeQuestionNodes(ctx context.Context, runID common.ID, metrics []*analytics.QuestionMetrics) error {
	query := `
		UNWIND $batch AS row
		MERGE (q:Question {id: row.id})
		ON CREATE SET q.created_at = datetime()
		SET q.avg_controversy = row.avg_controversy,
		    q.scored_answers = row.scored_answers,
		    q.total_answers = row.total_answers,
		    q.total_engagement = row.total_engagement,
		    q.last_run_id = $runId,
		    q.updated_at = datetime()
	`
	for start := 0; start < len(metrics); start += nodeBatchSize {
		end := start + nodeBatchSize
		if end > len(metrics) {
			end = len(metrics)
		}
		batch := make([]map[string]any, 0, end-start)
		for _, m := range metrics[start:end] {
			batch = append(batch, map[string]any{
				"id":               m.QuestionID,
				"avg_controversy":  m.AvgControversy,
				"scored_answers":   m.ScoredAnswers,
				"total_answers":    m.TotalAnswers,
				"total_engagement": m.TotalEngagement,
			})
		}
		_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
			_, err := tx.Run(ctx, query, map[string]any{
				"batch": batch,
				"runId": string(runID),
			})
			return nil, err
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeGraphWriteFailed, "failed to write question nodes")
		}
	}
	return nil
}

func (r *GraphRepo) writeDisagreementEdges(ctx context.Context, runID common.ID, pairs []*controversy.PairDistance) error {
	query := `
		UNWIND $batch AS row
		MERGE (q:Question {id: row.question_id})
		MERGE (a:Answer {id: row.answer_a})
		MERGE (b:Answer {id: row.answer_b})
		MERGE (a)-[:BELONGS_TO]->(q)
		MERGE (b)-[:BELONGS_TO]->(q)
		MERGE (a)-[d:DISAGREES_WITH {run_id: $runId}]->(b)
		SET d.distance = row.distance,
		    d.question_id = row.question_id,
		    d.updated_at = datetime()
	`
	for start := 0; start < len(pairs); start += nodeBatchSize {
		end := start + nodeBatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := make([]map[string]any, 0, end-start)
		for _, p := range pairs[start:end] {
			batch = append(batch, map[string]any{
				"question_id": p.QuestionID,
				"answer_a":    p.AnswerA,
				"answer_b":    p.AnswerB,
				"distance":    p.Distance,
			})
		}
		_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
			_, err := tx.Run(ctx, query, map[string]any{
				"batch": batch,
				"runId": string(runID),
			})
			return nil, err
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeGraphWriteFailed, "failed to write disagreement edges")
		}
	}
	return nil
}

// StrongestDisagreements returns the highest-distance edges of a run,
// strongest first.
func (r *GraphRepo) StrongestDisagreements(ctx context.Context, runID common.ID, limit int) ([]*DisagreementEdge, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		MATCH (a:Answer)-[d:DISAGREES_WITH {run_id: $runId}]->(b:Answer)
		RETURN d.question_id AS question_id, a.id AS answer_a, b.id AS answer_b, d.distance AS distance
		ORDER BY d.distance DESC
		LIMIT $limit
	`
	result, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"runId": string(runID),
			"limit": limit,
		})
		if err != nil {
			return nil, err
		}
		return driver.CollectRecords(ctx, res, recordToEdge)
	})
	if err != nil {
		return nil, err
	}
	edges, _ := result.([]*DisagreementEdge)
	return edges, nil
}

// DropRun removes the disagreement edges of one run. Nodes stay because later
// runs reuse them.
func (r *GraphRepo) DropRun(ctx context.Context, runID common.ID) error {
	query := `
		MATCH ()-[d:DISAGREES_WITH {run_id: $runId}]->()
		DELETE d
	`
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"runId": string(runID)})
		return nil, err
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeGraphWriteFailed, "failed to drop run edges")
	}
	return nil
}

func recordToEdge(rec *neo4j.Record) (*DisagreementEdge, error) {
	edge := &DisagreementEdge{}
	if v, ok := rec.Get("question_id"); ok {
		edge.QuestionID, _ = v.(string)
	}
	if v, ok := rec.Get("answer_a"); ok {
		edge.AnswerA, _ = v.(string)
	}
	if v, ok := rec.Get("answer_b"); ok {
		edge.AnswerB, _ = v.(string)
	}
	if v, ok := rec.Get("distance"); ok {
		edge.Distance, _ = v.(float64)
	}
	return edge, nil
}
