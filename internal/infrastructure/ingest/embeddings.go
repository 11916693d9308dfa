package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/turtacn/Controversy-Insight/internal/domain/embedding"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// EmbeddingReader loads the token-embedding table from a delimited file.
// It implements pipeline.EmbeddingSource.
//
// Each row is (token_id, embedding).  The embedding is either a single
// whitespace-delimited field ("0.12 -0.4 ...", the usual export shape) or
// one float per remaining column.  Rows that fail to parse, repeat a token,
// or disagree with the table dimension are skipped and recorded.
type EmbeddingReader struct {
	path      string
	delimiter rune
	hasHeader bool
	logger    logging.Logger

	skips []SkippedRow
}

// EmbeddingReaderOption configures an EmbeddingReader.
type EmbeddingReaderOption func(*EmbeddingReader)

// WithEmbeddingDelimiter sets the field separator.
func WithEmbeddingDelimiter(d rune) EmbeddingReaderOption {
	return func(r *EmbeddingReader) { r.delimiter = d }
}

// WithEmbeddingHeader declares whether the first row is a header.
func WithEmbeddingHeader(has bool) EmbeddingReaderOption {
	return func(r *EmbeddingReader) { r.hasHeader = has }
}

// NewEmbeddingReader constructs a reader over the given file path.
func NewEmbeddingReader(path string, logger logging.Logger, opts ...EmbeddingReaderOption) *EmbeddingReader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &EmbeddingReader{
		path:      path,
		delimiter: ',',
		hasHeader: true,
		logger:    logger.Named("ingest.embeddings"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Describe implements pipeline.SourceInfo.
func (r *EmbeddingReader) Describe() string { return "file://" + r.path }

// Skips returns the rows excluded by the last ReadTable, in file order.
func (r *EmbeddingReader) Skips() []SkippedRow { return r.skips }

// ReadTable implements pipeline.EmbeddingSource.  An unreadable file or a
// file that yields zero valid rows is an error; anything row-local is a skip.
func (r *EmbeddingReader) ReadTable(ctx context.Context) (*embedding.Table, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "embedding export not readable: "+r.path)
	}
	defer f.Close()
	return r.read(ctx, f)
}

func (r *EmbeddingReader) read(ctx context.Context, src io.Reader) (*embedding.Table, error) {
	cr := csv.NewReader(src)
	cr.Comma = r.delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	r.skips = nil
	builder := embedding.NewTableBuilder()
	line := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			r.skip(line, "unparsable row: "+err.Error())
			continue
		}
		if line == 1 && r.hasHeader {
			continue
		}
		if len(record) < 2 {
			r.skip(line, "expected token id and embedding")
			continue
		}

		tokenID, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			r.skip(line, "token id is not an integer: "+record[0])
			continue
		}

		vector, err := parseVector(record[1:])
		if err != nil {
			r.skip(line, err.Error())
			continue
		}

		if err := builder.Add(tokenID, vector); err != nil {
			r.skip(line, err.Error())
			continue
		}
	}

	table, err := builder.Build()
	if err != nil {
		return nil, err
	}

	r.logger.Info("embedding export read",
		logging.String("path", r.path),
		logging.Int("tokens", table.Len()),
		logging.Int("dim", table.Dim()),
		logging.Int("skipped", len(r.skips)))
	return table, nil
}

// parseVector reads coordinates either from one whitespace-delimited field
// or from one column per coordinate.  Both shapes funnel through
// embedding.ParseVector for identical error behavior.
func parseVector(fields []string) ([]float32, error) {
	return embedding.ParseVector(strings.Join(fields, " "))
}

func (r *EmbeddingReader) skip(line int, reason string) {
	r.skips = append(r.skips, SkippedRow{Line: line, Reason: reason})
	r.logger.Warn("embedding row skipped", logging.Int("line", line), logging.String("reason", reason))
}
