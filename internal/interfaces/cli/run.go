package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/ingest"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// runOptions holds flags of the run command.
type runOptions struct {
	AnswersPath string
	TokensPath  string
	Delimiter   string
	HasHeader   bool
	Concurrency int
	OutPath     string
	TopN        int
}

// NewRunCmd creates the run command: execute the pipeline locally on the
// given input files and print the resulting report. No sinks are written.
func NewRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controversy analysis on local input files",
		Long:  "Reads an answers file and a token-embeddings file, runs the full\nanalysis (vectorize, score, aggregate, correlate), and prints the report.\nOutput sinks are not written; use the worker for persisted runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.AnswersPath, "answers", "", "answers file path (overrides config)")
	f.StringVar(&opts.TokensPath, "tokens", "", "token embeddings file path (overrides config)")
	f.StringVar(&opts.Delimiter, "delimiter", "", `field delimiter, e.g. "\t" (overrides config)`)
	f.BoolVar(&opts.HasHeader, "header", false, "input files carry a header row")
	f.IntVar(&opts.Concurrency, "concurrency", 0, "scoring worker count (overrides config)")
	f.StringVar(&opts.OutPath, "out", "", "write the full JSON report to this file")
	f.IntVar(&opts.TopN, "top", 10, "number of questions to show in the summary")

	return cmd
}

func runAnalysis(cmd *cobra.Command, opts *runOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	logger := cliCtx.Logger

	answersPath := opts.AnswersPath
	if answersPath == "" {
		answersPath = cfg.Ingest.AnswersPath
	}
	tokensPath := opts.TokensPath
	if tokensPath == "" {
		tokensPath = cfg.Ingest.TokensPath
	}
	if answersPath == "" || tokensPath == "" {
		return errors.New(errors.ErrCodeValidation, "both --answers and --tokens are required (or set ingest paths in config)")
	}

	delimiter := cfg.DelimiterRune()
	if opts.Delimiter != "" {
		d, err := parseDelimiter(opts.Delimiter)
		if err != nil {
			return err
		}
		delimiter = d
	}
	hasHeader := cfg.Ingest.HasHeader
	if cmd.Flags().Changed("header") {
		hasHeader = opts.HasHeader
	}

	answers := ingest.NewAnswerReader(answersPath, logger,
		ingest.WithAnswerDelimiter(delimiter),
		ingest.WithAnswerHeader(hasHeader),
	)
	embeddings := ingest.NewEmbeddingReader(tokensPath, logger,
		ingest.WithEmbeddingDelimiter(delimiter),
		ingest.WithEmbeddingHeader(hasHeader),
	)

	pipelineCfg := cfg.Pipeline
	if opts.Concurrency > 0 {
		pipelineCfg.Concurrency = opts.Concurrency
	}

	svc, err := pipeline.NewService(pipelineCfg, answers, embeddings, &pipeline.Sinks{}, pipeline.NopMetrics{}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	defer cancel()

	report, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	if opts.OutPath != "" {
		if err := writeReportFile(opts.OutPath, report); err != nil {
			return err
		}
		logger.Info("report written", logging.String("path", opts.OutPath))
	}

	if strings.ToLower(cliCtx.OutputFormat) == "json" {
		return printJSON(cmd, report)
	}
	return PrintResult(cmd, newRunSummary(report, opts.TopN))
}

// parseDelimiter accepts a single rune or the escapes \t, \n.
func parseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`:
		return '\t', nil
	case `\n`:
		return '\n', nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, errors.Newf(errors.ErrCodeValidation, "delimiter must be a single character, got %q", s)
	}
	return runes[0], nil
}

func writeReportFile(path string, report *pipeline.AnalysisReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write report file")
	}
	return nil
}

// runSummary is the human-readable view of an analysis report. Questions
// are shown most controversial first regardless of report order.
type runSummary struct {
	report *pipeline.AnalysisReport
	ranked []*analytics.QuestionMetrics
	topN   int
}

func newRunSummary(report *pipeline.AnalysisReport, topN int) *runSummary {
	if topN <= 0 {
		topN = 10
	}
	ranked := make([]*analytics.QuestionMetrics, len(report.Questions))
	copy(ranked, report.Questions)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].AvgControversy > ranked[j].AvgControversy
	})
	return &runSummary{report: report, ranked: ranked, topN: topN}
}

func (s *runSummary) String() string {
	r := s.report
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s (%s) finished in %.0fms\n", r.RunID, r.Status, r.ElapsedMs)
	fmt.Fprintf(&sb, "  answers read:      %d\n", r.Input.AnswersRead)
	fmt.Fprintf(&sb, "  tokens loaded:     %d (dim %d)\n", r.Input.TokensLoaded, r.Input.EmbeddingDim)
	fmt.Fprintf(&sb, "  vectorized:        %d (excluded %d)\n", r.Vectorization.Vectorized, r.Vectorization.Excluded)
	fmt.Fprintf(&sb, "  questions scored:  %d of %d (singletons %d)\n", r.Scoring.QuestionsScored, r.Scoring.QuestionsTotal, r.Scoring.SingletonGroups)
	fmt.Fprintf(&sb, "  answers scored:    %d\n", r.Scoring.AnswersScored)

	if len(r.Questions) > 0 {
		fmt.Fprintf(&sb, "\nTop questions by controversy:\n")
		fmt.Fprint(&sb, FormatTable(s.TableHeaders(), s.TableRows()))
	}
	return sb.String()
}

func (s *runSummary) TableHeaders() []string {
	return []string{"QUESTION", "AVG CONTROVERSY", "SCORED", "TOTAL", "ENGAGEMENT"}
}

func (s *runSummary) TableRows() [][]string {
	n := s.topN
	if n > len(s.ranked) {
		n = len(s.ranked)
	}
	rows := make([][]string, 0, n)
	for _, q := range s.ranked[:n] {
		rows = append(rows, []string{
			q.QuestionID,
			strconv.FormatFloat(q.AvgControversy, 'f', 4, 64),
			strconv.Itoa(q.ScoredAnswers),
			strconv.Itoa(q.TotalAnswers),
			strconv.FormatInt(q.TotalEngagement, 10),
		})
	}
	return rows
}
