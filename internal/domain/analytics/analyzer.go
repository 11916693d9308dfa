package analytics

import (
	"math"

	"github.com/turtacn/Controversy-Insight/internal/domain/answer"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
)

// Method names the correlation methods in the output table.
type Method string

const (
	MethodPearson  Method = "pearson"
	MethodSpearman Method = "spearman"
)

// Methods returns the correlation methods in canonical row order.
func Methods() []Method {
	return []Method{MethodPearson, MethodSpearman}
}

// SignalCorrelation is one column of the correlation table: both
// coefficients of one engagement signal against average controversy.
type SignalCorrelation struct {
	Signal   answer.Signal `json:"signal"`
	Pearson  Coefficient   `json:"pearson"`
	Spearman Coefficient   `json:"spearman"`
}

// CorrelationResult is the full correlation analysis output: one column per
// engagement-derived signal plus descriptive statistics of the controversy
// and total-engagement distributions.
type CorrelationResult struct {
	Signals          []SignalCorrelation `json:"signals"`
	ControversyStats Descriptive         `json:"controversy_stats"`
	EngagementStats  Descriptive         `json:"engagement_stats"`
}

// Coefficient returns the cell for one (method, signal) pair, NaN-undefined
// for unknown keys.
func (r *CorrelationResult) Coefficient(m Method, s answer.Signal) Coefficient {
	for _, sc := range r.Signals {
		if sc.Signal != s {
			continue
		}
		switch m {
		case MethodPearson:
			return sc.Pearson
		case MethodSpearman:
			return sc.Spearman
		}
	}
	return Coefficient(math.NaN())
}

// Analyzer computes the correlation table over an aggregated metric table.
type Analyzer struct {
	logger logging.Logger
}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(logger logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Analyzer{logger: logger}
}

// Analyze correlates each of the eight engagement-derived columns against
// average controversy over all rows, and describes the controversy and
// total-engagement distributions.  Rows excluded upstream are simply absent;
// nothing is imputed.  Analyze is total: with fewer than two rows every
// coefficient is undefined, and an empty table yields an all-undefined
// result with Count-0 statistics rather than an error.
func (an *Analyzer) Analyze(metrics []*QuestionMetrics) *CorrelationResult {
	controversyCol := make([]float64, len(metrics))
	engagementCol := make([]float64, len(metrics))
	for i, m := range metrics {
		controversyCol[i] = m.AvgControversy
		engagementCol[i] = float64(m.TotalEngagement)
	}

	signals := answer.Signals()
	result := &CorrelationResult{
		Signals:          make([]SignalCorrelation, 0, len(signals)),
		ControversyStats: Describe(controversyCol),
		EngagementStats:  Describe(engagementCol),
	}

	col := make([]float64, len(metrics))
	for _, sig := range signals {
		for i, m := range metrics {
			col[i] = float64(m.Signal(sig))
		}
		result.Signals = append(result.Signals, SignalCorrelation{
			Signal:   sig,
			Pearson:  Coefficient(Pearson(col, controversyCol)),
			Spearman: Coefficient(Spearman(col, controversyCol)),
		})
	}

	defined := 0
	for _, sc := range result.Signals {
		if sc.Pearson.IsDefined() {
			defined++
		}
	}
	an.logger.Info("correlation analysis complete",
		logging.Int("rows", len(metrics)),
		logging.Int("signals", len(signals)),
		logging.Int("defined_pearson_cells", defined))

	return result
}
