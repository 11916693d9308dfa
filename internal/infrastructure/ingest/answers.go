// Package ingest reads the delimited input exports of the controversy
// pipeline: the answer table and the token-embedding table.  Malformed rows
// are skipped and recorded, never fatal; the pipeline runs over whatever
// parsed cleanly.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/turtacn/Controversy-Insight/internal/domain/answer"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// SkippedRow records one input row that was excluded during ingestion.
type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Answer export column layout.  Files with a header are mapped by name;
// headerless files must follow this exact order.
var answerColumns = []string{
	"answer_id", "question_id", "author_id",
	"thanks_count", "likes_count", "comments_count", "collections_count",
	"dislikes_count", "reports_count", "helpless_count",
	"content_tokens", "topic",
}

// AnswerReader loads the answer table from a delimited file.  It implements
// answer.Source.  The token field is carried verbatim; its parsing (and any
// exclusion it causes) belongs to the vectorization stage.
type AnswerReader struct {
	path      string
	delimiter rune
	hasHeader bool
	logger    logging.Logger

	skips []SkippedRow
}

// AnswerReaderOption configures an AnswerReader.
type AnswerReaderOption func(*AnswerReader)

// WithAnswerDelimiter sets the field separator, '\t' for TSV exports.
func WithAnswerDelimiter(d rune) AnswerReaderOption {
	return func(r *AnswerReader) { r.delimiter = d }
}

// WithAnswerHeader declares whether the first row is a header.
func WithAnswerHeader(has bool) AnswerReaderOption {
	return func(r *AnswerReader) { r.hasHeader = has }
}

// NewAnswerReader constructs a reader over the given file path.
func NewAnswerReader(path string, logger logging.Logger, opts ...AnswerReaderOption) *AnswerReader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &AnswerReader{
		path:      path,
		delimiter: ',',
		hasHeader: true,
		logger:    logger.Named("ingest.answers"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Describe implements pipeline.SourceInfo.
func (r *AnswerReader) Describe() string { return "file://" + r.path }

// Skips returns the rows excluded by the last ReadAll, in file order.
func (r *AnswerReader) Skips() []SkippedRow { return r.skips }

// ReadAll implements answer.Source.  Rows that cannot be turned into an
// Answer (missing identifiers, non-numeric counters, wrong field count) are
// skipped and recorded; only an unreadable file fails the load.
func (r *AnswerReader) ReadAll(ctx context.Context) ([]*answer.Answer, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "answer export not readable: "+r.path)
	}
	defer f.Close()
	return r.read(ctx, f)
}

func (r *AnswerReader) read(ctx context.Context, src io.Reader) ([]*answer.Answer, error) {
	cr := csv.NewReader(src)
	cr.Comma = r.delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	r.skips = nil
	cols := positionalIndex(answerColumns)
	line := 0

	var answers []*answer.Answer
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
			cols, err = headerIndex(record, answerColumns)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "answer export header invalid")
			}
			continue
		}

		a, err := r.parseRow(record, cols)
		if err != nil {
			r.skip(line, err.Error())
			continue
		}
		answers = append(answers, a)
	}

	r.logger.Info("answer export read",
		logging.String("path", r.path),
		logging.Int("answers", len(answers)),
		logging.Int("skipped", len(r.skips)))
	return answers, nil
}

func (r *AnswerReader) parseRow(record []string, cols map[string]int) (*answer.Answer, error) {
	field := func(name string) (string, error) {
		ix, ok := cols[name]
		if !ok || ix >= len(record) {
			return "", fmt.Errorf("missing column %s", name)
		}
		return record[ix], nil
	}

	id, err := field("answer_id")
	if err != nil {
		return nil, err
	}
	questionID, err := field("question_id")
	if err != nil {
		return nil, err
	}

	var eng answer.Engagement
	counters := []struct {
		name string
		dst  *int64
	}{
		{"thanks_count", &eng.Thanks},
		{"likes_count", &eng.Likes},
		{"comments_count", &eng.Comments},
		{"collections_count", &eng.Collections},
		{"dislikes_count", &eng.Dislikes},
		{"reports_count", &eng.Reports},
		{"helpless_count", &eng.Helpless},
	}
	for _, c := range counters {
		raw, err := field(c.name)
		if err != nil {
			return nil, err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s is not an integer: %q", c.name, raw)
		}
		*c.dst = v
	}

	// The token field is optional; absence means no tokens.
	rawTokens := ""
	if ix, ok := cols["content_tokens"]; ok && ix < len(record) {
		rawTokens = record[ix]
	}

	return answer.NewAnswer(id, questionID, rawTokens, eng)
}

func (r *AnswerReader) skip(line int, reason string) {
	r.skips = append(r.skips, SkippedRow{Line: line, Reason: reason})
	r.logger.Warn("answer row skipped", logging.Int("line", line), logging.String("reason", reason))
}

// positionalIndex maps the canonical column order onto indices for files
// without a header.
func positionalIndex(columns []string) map[string]int {
	ix := make(map[string]int, len(columns))
	for i, c := range columns {
		ix[c] = i
	}
	return ix
}

// headerIndex maps column names to indices from an actual header row.
// Required columns are everything except the ignored author/topic fields.
func headerIndex(header, columns []string) (map[string]int, error) {
	ix := make(map[string]int, len(header))
	for i, name := range header {
		ix[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, c := range columns {
		if c == "author_id" || c == "topic" || c == "content_tokens" {
			continue
		}
		if _, ok := ix[c]; !ok {
			return nil, fmt.Errorf("required column %s not in header", c)
		}
	}
	return ix, nil
}
