package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/Controversy-Insight/pkg/client"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// reportOptions holds flags of the report command.
type reportOptions struct {
	Latest  bool
	OutPath string
}

// NewReportCmd creates the report command: fetch a stored analysis report
// from the API server by run ID, or the latest completed one.
func NewReportCmd() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Fetch a stored analysis report from the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchReport(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.Latest, "latest", false, "fetch the report of the latest completed run")
	f.StringVar(&opts.OutPath, "out", "", "write the JSON report to this file")

	return cmd
}

func fetchReport(cmd *cobra.Command, args []string, opts *reportOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if cliCtx.Client == nil {
		return errors.New(errors.ErrCodeServiceUnavailable, "API client not configured; set --server or server config")
	}
	if !opts.Latest && len(args) == 0 {
		return errors.New(errors.ErrCodeValidation, "a run ID or --latest is required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	defer cancel()

	var report client.Report
	if opts.Latest {
		report, err = cliCtx.Client.Runs().LatestReport(ctx)
	} else {
		report, err = cliCtx.Client.Runs().Report(ctx, args[0])
	}
	if err != nil {
		return err
	}

	if opts.OutPath != "" {
		if err := os.WriteFile(opts.OutPath, report, 0o644); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to write report file")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", opts.OutPath)
		return nil
	}

	switch cliCtx.OutputFormat {
	case "text", "table":
		return printReportDigest(cmd, report)
	default:
		var buf json.RawMessage = json.RawMessage(report)
		return printJSON(cmd, buf)
	}
}

// printReportDigest extracts the headline fields from the raw report so the
// text output stays stable even if the server adds fields.
func printReportDigest(cmd *cobra.Command, raw client.Report) error {
	var digest struct {
		RunID     string  `json:"run_id"`
		Status    string  `json:"status"`
		ElapsedMs float64 `json:"elapsed_ms"`
		Input     struct {
			AnswersRead  int `json:"answers_read"`
			TokensLoaded int `json:"tokens_loaded"`
		} `json:"input"`
		Scoring struct {
			QuestionsScored int `json:"questions_scored"`
			AnswersScored   int `json:"answers_scored"`
		} `json:"scoring"`
		Questions []struct {
			QuestionID     string  `json:"question_id"`
			AvgControversy float64 `json:"avg_controversy"`
			ScoredAnswers  int     `json:"scored_answers"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(raw, &digest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode report")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s) — %.0fms\n", digest.RunID, digest.Status, digest.ElapsedMs)
	fmt.Fprintf(out, "  answers read: %d, tokens loaded: %d\n", digest.Input.AnswersRead, digest.Input.TokensLoaded)
	fmt.Fprintf(out, "  questions scored: %d, answers scored: %d\n", digest.Scoring.QuestionsScored, digest.Scoring.AnswersScored)

	if len(digest.Questions) > 0 {
		rows := make([][]string, 0, len(digest.Questions))
		for _, q := range digest.Questions {
			rows = append(rows, []string{
				q.QuestionID,
				strconv.FormatFloat(q.AvgControversy, 'f', 4, 64),
				strconv.Itoa(q.ScoredAnswers),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, FormatTable([]string{"QUESTION", "AVG CONTROVERSY", "SCORED"}, rows))
	}
	return nil
}
