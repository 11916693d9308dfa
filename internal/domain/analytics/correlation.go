package analytics

import (
	"math"
	"sort"
	"strconv"
)

// Coefficient is a correlation coefficient that may be undefined.  Undefined
// values (NaN) marshal to JSON null instead of failing the encoder, and null
// unmarshals back to NaN.
type Coefficient float64

// IsDefined reports whether the coefficient has a numeric value.
func (c Coefficient) IsDefined() bool {
	return !math.IsNaN(float64(c))
}

// MarshalJSON renders undefined coefficients as null.
func (c Coefficient) MarshalJSON() ([]byte, error) {
	if !c.IsDefined() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(c), 'g', -1, 64)), nil
}

// UnmarshalJSON accepts null as undefined.
func (c *Coefficient) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Coefficient(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*c = Coefficient(f)
	return nil
}

// Pearson returns the Pearson linear correlation coefficient of two columns.
// It returns NaN when the coefficient is undefined: mismatched lengths,
// fewer than two rows, or a zero-variance column.  An undefined coefficient
// is reported as such, never replaced by a fabricated number.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return math.NaN()
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	if varX == 0 || varY == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varX*varY)
}

// Spearman returns the Spearman rank correlation coefficient: Pearson over
// fractional ranks, with ties receiving the average of the ranks they span.
// Undefined cases follow Pearson's NaN contract.
func Spearman(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN()
	}
	return Pearson(Ranks(x), Ranks(y))
}

// Ranks assigns 1-based fractional ranks to values; equal values share the
// average of the rank positions they occupy.  The input slice is not
// modified.
func Ranks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Positions i..j (0-based) hold ranks i+1..j+1; ties get the mean.
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}
