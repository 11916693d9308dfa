package analytics

import (
	"encoding/json"
	"math"
	"sort"
)

// Descriptive holds standard summary statistics of one numeric column.
// Std is the sample standard deviation (n−1 denominator); quartiles use
// linear interpolation between order statistics.  An empty column has
// Count 0 and NaN everywhere else; a single-value column has NaN Std.
type Descriptive struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// Describe computes descriptive statistics over values.  The input slice is
// not modified.
func Describe(values []float64) Descriptive {
	n := len(values)
	if n == 0 {
		nan := math.NaN()
		return Descriptive{Count: 0, Mean: nan, Std: nan, Min: nan, Q25: nan, Median: nan, Q75: nan, Max: nan}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	m := mean(values)
	return Descriptive{
		Count:  n,
		Mean:   m,
		Std:    sampleStd(values, m),
		Min:    sorted[0],
		Q25:    percentile(sorted, 0.25),
		Median: percentile(sorted, 0.50),
		Q75:    percentile(sorted, 0.75),
		Max:    sorted[n-1],
	}
}

// descriptiveJSON is the wire form of Descriptive: absent statistics are
// null rather than NaN, which encoding/json cannot represent.
type descriptiveJSON struct {
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	Std    *float64 `json:"std"`
	Min    *float64 `json:"min"`
	Q25    *float64 `json:"q25"`
	Median *float64 `json:"median"`
	Q75    *float64 `json:"q75"`
	Max    *float64 `json:"max"`
}

// MarshalJSON renders NaN statistics as null.
func (d Descriptive) MarshalJSON() ([]byte, error) {
	opt := func(v float64) *float64 {
		if math.IsNaN(v) {
			return nil
		}
		return &v
	}
	return json.Marshal(descriptiveJSON{
		Count:  d.Count,
		Mean:   opt(d.Mean),
		Std:    opt(d.Std),
		Min:    opt(d.Min),
		Q25:    opt(d.Q25),
		Median: opt(d.Median),
		Q75:    opt(d.Q75),
		Max:    opt(d.Max),
	})
}

// UnmarshalJSON restores null statistics to NaN.
func (d *Descriptive) UnmarshalJSON(data []byte) error {
	var raw descriptiveJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	val := func(p *float64) float64 {
		if p == nil {
			return math.NaN()
		}
		return *p
	}
	d.Count = raw.Count
	d.Mean = val(raw.Mean)
	d.Std = val(raw.Std)
	d.Min = val(raw.Min)
	d.Q25 = val(raw.Q25)
	d.Median = val(raw.Median)
	d.Q75 = val(raw.Q75)
	d.Max = val(raw.Max)
	return nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd returns the sample standard deviation around m, NaN for fewer
// than two values.
func sampleStd(values []float64, m float64) float64 {
	n := len(values)
	if n < 2 {
		return math.NaN()
	}
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// percentile returns the p-th quantile (p in [0, 1]) of an ascending-sorted
// slice using linear interpolation between the two nearest order statistics.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
