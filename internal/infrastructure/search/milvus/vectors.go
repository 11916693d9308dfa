package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/Controversy-Insight/internal/config"
	"github.com/turtacn/Controversy-Insight/internal/domain/embedding"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

const (
	fieldID         = "id"
	fieldRunID      = "run_id"
	fieldAnswerID   = "answer_id"
	fieldQuestionID = "question_id"
	fieldVector     = "vector"

	defaultNList = 1024
)

// VectorStore writes answer vectors into a Milvus collection. It implements
// pipeline.VectorStore.
type VectorStore struct {
	client *Client
	cfg    config.MilvusConfig
	logger logging.Logger
	dim    int
}

// NewVectorStore builds the store. dim is the embedding dimension the
// collection is created with.
func NewVectorStore(c *Client, cfg config.MilvusConfig, dim int, log logging.Logger) (*VectorStore, error) {
	if dim <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "embedding dimension must be positive")
	}
	if cfg.EmbeddingDim != 0 && cfg.EmbeddingDim != dim {
		return nil, errors.Newf(errors.ErrCodeDimensionMismatch,
			"configured dimension %d does not match embedding table dimension %d", cfg.EmbeddingDim, dim)
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &VectorStore{
		client: c,
		cfg:    cfg,
		logger: log.Named("milvus.vectors"),
		dim:    dim,
	}, nil
}

// CollectionName returns the answer-vector collection name under the
// configured prefix.
func (s *VectorStore) CollectionName() string {
	prefix := s.cfg.CollectionPrefix
	if prefix == "" {
		prefix = "controversy_"
	}
	return prefix + "answer_vectors"
}

// EnsureCollection creates the collection and its index when absent, then
// loads it.
func (s *VectorStore) EnsureCollection(ctx context.Context) error {
	sdk := s.client.SDK()
	name := s.CollectionName()

	has, err := sdk.HasCollection(ctx, name)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeVectorStoreFailed, "failed to check collection")
	}
	if !has {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("mean-pooled answer vectors by run").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true).WithIsAutoID(true)).
			WithField(entity.NewField().WithName(fieldRunID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldAnswerID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
			WithField(entity.NewField().WithName(fieldQuestionID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
			WithField(entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		shards := int32(s.cfg.ShardsNum)
		if shards == 0 {
			shards = 2
		}
		if err := sdk.CreateCollection(ctx, schema, shards); err != nil {
			return errors.Wrap(err, errors.ErrCodeVectorStoreFailed, "failed to create collection")
		}

		index, err := entity.NewIndexIvfFlat(entity.COSINE, defaultNList)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeVectorStoreFailed, "failed to build index definition")
		}
		if err := sdk.CreateIndex(ctx, name, fieldVector, index, false); err != nil {
			return errors.Wrap(err, errors.ErrCodeVectorStoreFailed, "failed to create vector index")
		}
		s.logger.Info("Collection created",
			logging.String("collection", name),
			logging.Int("dim", s.dim),
		)
	}

	if err := sdk.LoadCollection(ctx, name, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeVectorStoreFailed, "failed to load collection")
	}
	return nil
}

// StoreVectors bulk-inserts the vectors of one run and flushes.
func (s *VectorStore) StoreVectors(ctx context.Context, runID common.ID, vectors []*embedding.AnswerVector) error {
	if len(vectors) == 0 {
		return nil
	}

	runIDs := make([]string, len(vectors))
	answerIDs := make([]string, len(vectors))
	questionIDs := make([]string, len(vectors))
	values := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v.Vector) != s.dim {
			return errors.Newf(errors.ErrCodeDimensionMismatch,
				"answer %s vector has dimension %d, collection expects %d", v.AnswerID, len(v.Vector), s.dim)
		}
		runIDs[i] = string(runID)
		answerIDs[i] = v.AnswerID
		questionIDs[i] = v.QuestionID
		values[i] = v.Vector
	}

	name := s.CollectionName()
	sdk := s.client.SDK()
	_, err := sdk.Insert(ctx, name, "",
		entity.NewColumnVarChar(fieldRunID, runIDs),
		entity.NewColumnVarChar(fieldAnswerID, answerIDs),
		entity.NewColumnVarChar(fieldQuestionID, questionIDs),
		entity.NewColumnFloatVector(fieldVector, s.dim, values),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeVectorStoreFailed, "failed to insert vectors")
	}
	if err := sdk.Flush(ctx, name, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeVectorStoreFailed, "failed to flush collection")
	}

	s.logger.Debug("answer vectors stored",
		logging.String("run_id", string(runID)),
		logging.Int("vectors", len(vectors)),
	)
	return nil
}

// DropRun deletes the vectors of one run.
func (s *VectorStore) DropRun(ctx context.Context, runID common.ID) error {
	expr := fmt.Sprintf(`%s == "%s"`, fieldRunID, runID)
	if err := s.client.SDK().Delete(ctx, s.CollectionName(), "", expr); err != nil {
		return errors.Wrap(err, errors.ErrCodeVectorStoreFailed, "failed to delete run vectors")
	}
	return nil
}
