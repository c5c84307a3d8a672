package dataflow

import (
	"math"

	"github.com/montanaflynn/stats"
)

type anomalyParams struct {
	Field     string         `json:"field"`
	Method    string         `json:"method"`
	Threshold *float64       `json:"threshold"`
	Params    map[string]any `json:"params"`
}

func (p anomalyParams) windowOr(def int) int {
	if w, ok := asFloat(p.Params["window"]); ok && int(w) > 0 {
		return int(w)
	}
	return def
}

// applyAnomaly scores each row of the target field and appends
// anomaly_score and is_anomaly columns; a point is anomalous when its
// score exceeds the threshold.
func applyAnomaly(input *Table, config map[string]any) (*Table, error) {
	var p anomalyParams
	if err := decodeConfig(config, &p); err != nil {
		return nil, err
	}
	if p.Method == "" {
		p.Method = "z_score"
	}
	threshold := 3.0
	if p.Threshold != nil {
		threshold = *p.Threshold
	}

	if p.Field == "" {
		return nil, configErrorf("anomaly requires a field")
	}
	if !input.HasColumn(p.Field) {
		return nil, configErrorf("anomaly field %q not found in input", p.Field)
	}

	values := make([]float64, input.NumRows())
	for i, row := range input.Rows() {
		f, ok := asFloat(row[p.Field])
		if !ok {
			if row[p.Field] == nil {
				f = math.NaN()
			} else {
				return nil, configErrorf("anomaly field %q holds non-numeric values", p.Field)
			}
		}
		values[i] = f
	}

	var scores []float64
	switch p.Method {
	case "z_score":
		scores = zScores(values)
	case "rolling_z":
		window := p.windowOr(7)
		minPeriods := window / 3
		if minPeriods < 3 {
			minPeriods = 3
		}
		if mp, ok := asFloat(p.Params["min_periods"]); ok && int(mp) > 0 {
			minPeriods = int(mp)
		}
		scores = rollingZScores(values, window, minPeriods)
	case "iqr":
		scores = iqrScores(values, p.windowOr(0))
	case "median_spike":
		scores = medianSpikeScores(values, p.windowOr(7))
	default:
		return nil, configErrorf("unknown anomaly method %q", p.Method)
	}

	columns := append(append([]Column(nil), input.Columns()...),
		Column{Name: "anomaly_score", Type: ColumnTypeFloat},
		Column{Name: "is_anomaly", Type: ColumnTypeBool},
	)

	rows := make([]Row, input.NumRows())
	for i, row := range input.Rows() {
		out := make(Row, len(row)+2)
		for k, v := range row {
			out[k] = v
		}
		score := scores[i]
		if math.IsNaN(score) || math.IsInf(score, 0) {
			score = 0
		}
		out["anomaly_score"] = score
		out["is_anomaly"] = score > threshold
		rows[i] = out
	}

	return NewTable(columns, rows), nil
}

// zScores is |x - mean| / stddev over the whole series with population
// stddev; a constant series scores 0 everywhere.
func zScores(values []float64) []float64 {
	clean := finiteValues(values)
	scores := make([]float64, len(values))
	if len(clean) == 0 {
		return scores
	}

	mean, _ := stats.Mean(clean)
	sigma, _ := stats.StandardDeviationPopulation(clean)
	if sigma == 0 {
		return scores
	}
	for i, x := range values {
		if math.IsNaN(x) {
			scores[i] = 0
			continue
		}
		scores[i] = math.Abs(x-mean) / sigma
	}
	return scores
}

// rollingZScores computes the same ratio over a centered window; edge
// positions without enough coverage fall back to the global z-score.
func rollingZScores(values []float64, window, minPeriods int) []float64 {
	global := zScores(values)
	scores := make([]float64, len(values))

	for i := range values {
		segment := finiteValues(centeredWindow(values, i, window))
		if len(segment) < minPeriods || math.IsNaN(values[i]) {
			scores[i] = global[i]
			continue
		}
		mean, _ := stats.Mean(segment)
		sigma, _ := stats.StandardDeviationPopulation(segment)
		if sigma == 0 {
			scores[i] = global[i]
			continue
		}
		scores[i] = math.Abs(values[i]-mean) / sigma
	}
	return scores
}

// iqrScores measures how far a point sits below Q1 or above Q3,
// normalized by the interquartile range; zero-IQR positions score 0. With
// a window > 1 the quartiles come from a centered rolling window.
func iqrScores(values []float64, window int) []float64 {
	scores := make([]float64, len(values))

	quartilesAt := func(i int) (float64, float64, bool) {
		data := values
		if window > 1 {
			data = centeredWindow(values, i, window)
		}
		clean := finiteValues(data)
		if len(clean) == 0 {
			return 0, 0, false
		}
		q, err := stats.Quartile(clean)
		if err != nil {
			return 0, 0, false
		}
		return q.Q1, q.Q3, true
	}

	for i, x := range values {
		if math.IsNaN(x) {
			continue
		}
		q1, q3, ok := quartilesAt(i)
		if !ok {
			continue
		}
		iqr := q3 - q1
		if iqr == 0 {
			continue
		}
		dist := 0.0
		if d := q1 - x; d > dist {
			dist = d
		}
		if d := x - q3; d > dist {
			dist = d
		}
		scores[i] = dist / iqr
	}
	return scores
}

// medianSpikeScores is the robust local-outlier score
// |x - rolling median| / rolling MAD, both over a centered window;
// non-finite results fall back to 0.
func medianSpikeScores(values []float64, window int) []float64 {
	n := len(values)
	medians := make([]float64, n)
	deviations := make([]float64, n)

	for i := range values {
		segment := finiteValues(centeredWindow(values, i, window))
		if len(segment) == 0 {
			medians[i] = math.NaN()
			deviations[i] = math.NaN()
			continue
		}
		med, _ := stats.Median(segment)
		medians[i] = med
		deviations[i] = math.Abs(values[i] - med)
	}

	scores := make([]float64, n)
	for i := range values {
		segment := finiteValues(centeredWindow(deviations, i, window))
		if len(segment) == 0 {
			continue
		}
		mad, _ := stats.Median(segment)
		if mad == 0 || math.IsNaN(values[i]) {
			continue
		}
		scores[i] = deviations[i] / mad
	}
	return scores
}

// centeredWindow clips a window of the given size centered on position i
// to the series bounds.
func centeredWindow(values []float64, i, window int) []float64 {
	if window <= 1 {
		return values[i : i+1]
	}
	lo := i - (window-1)/2
	hi := lo + window
	if lo < 0 {
		lo = 0
	}
	if hi > len(values) {
		hi = len(values)
	}
	return values[lo:hi]
}

func finiteValues(values []float64) []float64 {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	return clean
}
