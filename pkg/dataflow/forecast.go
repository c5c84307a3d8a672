package dataflow

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
)

type forecastParams struct {
	Target          string  `json:"target"`
	TSCol           string  `json:"ts_col"`
	Method          string  `json:"method"`
	Horizon         int     `json:"horizon"`
	Freq            string  `json:"freq"`
	Window          int     `json:"window"`
	Alpha           float64 `json:"alpha"`
	Order           []int   `json:"order"`
	SeasonalPeriods *int    `json:"seasonal_periods"`
	Combine         bool    `json:"combine"`
}

// forecastSeries is the cleaned observation history: rows with a null
// time or target dropped, sorted by time.
type forecastSeries struct {
	times      []any // original cell values, normalized to time.Time when datetime
	values     []float64
	isDatetime bool
}

// applyForecast produces a Table{ts_col, forecast[, source]} of horizon
// future points, optionally concatenated after the history.
func applyForecast(input *Table, config map[string]any) (*Table, error) {
	var p forecastParams
	if err := decodeConfig(config, &p); err != nil {
		return nil, err
	}
	applyForecastDefaults(&p)

	if p.Method == "auto" {
		return autoPredict(input, p)
	}

	series, err := extractSeries(input, p.TSCol, p.Target)
	if err != nil {
		return nil, err
	}

	futureTimes, err := futureIndex(series, p.Horizon, p.Freq)
	if err != nil {
		return nil, err
	}

	preds, err := forecastValues(series.values, p)
	if err != nil {
		return nil, err
	}

	return buildForecastTable(p.TSCol, series, futureTimes, preds, p.Combine), nil
}

func applyForecastDefaults(p *forecastParams) {
	if p.Method == "" {
		p.Method = "holt_winters"
	}
	if p.Horizon <= 0 {
		p.Horizon = 1
	}
	if p.Window == 0 {
		p.Window = 3
	}
	if p.Alpha == 0 {
		p.Alpha = 0.2
	}
	if len(p.Order) != 3 {
		p.Order = []int{1, 1, 1}
	}
}

func extractSeries(input *Table, tsCol, target string) (*forecastSeries, error) {
	if tsCol == "" || target == "" {
		return nil, configErrorf("forecast requires ts_col and target")
	}
	if !input.HasColumn(tsCol) {
		return nil, configErrorf("time column %q not found in input", tsCol)
	}
	if !input.HasColumn(target) {
		return nil, configErrorf("target column %q not found in input", target)
	}

	type observation struct {
		ts any
		t  time.Time
		y  float64
	}
	var observations []observation
	isDatetime := true

	for _, row := range input.Rows() {
		tsValue, yValue := row[tsCol], row[target]
		if tsValue == nil || yValue == nil {
			continue
		}
		y, ok := asFloat(yValue)
		if !ok {
			return nil, configErrorf("target column %q holds non-numeric values", target)
		}
		obs := observation{ts: tsValue, y: y}
		if t, ok := asTime(tsValue); ok {
			obs.t = t
			obs.ts = t
		} else {
			isDatetime = false
		}
		observations = append(observations, obs)
	}

	if len(observations) == 0 {
		return nil, configErrorf("forecast input has no usable observations")
	}

	if isDatetime {
		sort.SliceStable(observations, func(a, b int) bool {
			return observations[a].t.Before(observations[b].t)
		})
	} else {
		sort.SliceStable(observations, func(a, b int) bool {
			return compareValues(observations[a].ts, observations[b].ts) < 0
		})
	}

	series := &forecastSeries{isDatetime: isDatetime}
	for _, obs := range observations {
		series.times = append(series.times, obs.ts)
		series.values = append(series.values, obs.y)
	}
	return series, nil
}

// futureIndex generates horizon future time points: for real timestamps,
// one inferred (or explicit) step after the last observation onward; for
// anything else, integer step indices continuing the row index.
func futureIndex(series *forecastSeries, horizon int, freq string) ([]any, error) {
	future := make([]any, 0, horizon)

	if !series.isDatetime {
		last := len(series.values) - 1
		for i := 1; i <= horizon; i++ {
			future = append(future, last+i)
		}
		return future, nil
	}

	var step time.Duration
	if freq != "" {
		parsed, err := parseFrequency(freq)
		if err != nil {
			return nil, err
		}
		step = parsed
	} else {
		step = inferFrequency(series)
	}

	last := series.times[len(series.times)-1].(time.Time)
	for i := 1; i <= horizon; i++ {
		future = append(future, last.Add(time.Duration(i)*step))
	}
	return future, nil
}

// inferFrequency takes the median step between consecutive observations
// and snaps it to day, hour, or minute granularity.
func inferFrequency(series *forecastSeries) time.Duration {
	if len(series.times) < 2 {
		return 24 * time.Hour
	}

	diffs := make([]float64, 0, len(series.times)-1)
	for i := 1; i < len(series.times); i++ {
		prev := series.times[i-1].(time.Time)
		cur := series.times[i].(time.Time)
		diffs = append(diffs, float64(cur.Sub(prev)))
	}
	medianDiff, err := stats.Median(diffs)
	if err != nil || medianDiff <= 0 {
		return 24 * time.Hour
	}
	median := time.Duration(medianDiff)

	switch {
	case median%(24*time.Hour) == 0:
		return median
	case median%time.Hour == 0:
		return median
	case median%time.Minute == 0:
		return median
	default:
		return 24 * time.Hour
	}
}

// parseFrequency reads pandas-style offsets: "D", "7D", "H", "T"/"min".
func parseFrequency(freq string) (time.Duration, error) {
	unit := freq[len(freq)-1:]
	count := 1
	if len(freq) > 1 {
		if n, ok := asFloat(freq[:len(freq)-1]); ok {
			count = int(n)
		}
	}
	if count <= 0 {
		count = 1
	}

	switch unit {
	case "D", "d":
		return time.Duration(count) * 24 * time.Hour, nil
	case "H", "h":
		return time.Duration(count) * time.Hour, nil
	case "T", "t", "n":
		return time.Duration(count) * time.Minute, nil
	default:
		return 0, configErrorf("unsupported frequency %q", freq)
	}
}

func forecastValues(y []float64, p forecastParams) ([]float64, error) {
	switch p.Method {
	case "naive":
		return repeatValue(y[len(y)-1], p.Horizon), nil

	case "mean":
		mean, _ := stats.Mean(y)
		return repeatValue(mean, p.Horizon), nil

	case "moving_average":
		if p.Window < 1 {
			return nil, configErrorf("moving_average window must be >= 1")
		}
		return movingAverageForecast(y, p.Window, p.Horizon), nil

	case "exp_smoothing":
		if p.Alpha <= 0 || p.Alpha > 1 {
			return nil, configErrorf("exp_smoothing alpha must be in (0,1]")
		}
		level := y[0]
		for _, value := range y {
			level = p.Alpha*value + (1-p.Alpha)*level
		}
		return repeatValue(level, p.Horizon), nil

	case "linear_trend":
		return linearTrendForecast(y, p.Horizon), nil

	case "holt":
		return holtForecast(y, p.Horizon), nil

	case "hw", "holt_winters":
		period := 0
		if p.SeasonalPeriods != nil {
			period = *p.SeasonalPeriods
		}
		if period == 0 {
			period = detectSeasonalPeriods(y, 50)
			// Only an auto-detected period shrinks on short history; an
			// explicitly configured one surfaces the fitting error instead.
			if len(y) < 2*period {
				period = len(y) / 3
				if period < 2 {
					period = 2
				}
			}
		}
		return holtWintersForecast(y, period, p.Horizon)

	case "arima":
		if len(y) < 3 {
			return nil, configErrorf("arima requires at least 3 data points")
		}
		return arimaForecast(y, p.Order[0], p.Order[1], p.Order[2], p.Horizon)

	default:
		return nil, configErrorf("unsupported forecast method %q", p.Method)
	}
}

func repeatValue(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// movingAverageForecast rolls a trailing-window mean forward, feeding each
// prediction back into the window for multi-step horizons.
func movingAverageForecast(y []float64, window, horizon int) []float64 {
	start := len(y) - window
	if start < 0 {
		start = 0
	}
	buffer := append([]float64(nil), y[start:]...)

	preds := make([]float64, 0, horizon)
	for i := 0; i < horizon; i++ {
		tail := buffer
		if len(tail) > window {
			tail = tail[len(tail)-window:]
		}
		mean, _ := stats.Mean(tail)
		preds = append(preds, mean)
		buffer = append(buffer, mean)
	}
	return preds
}

// linearTrendForecast fits value against a normalized step index by
// ordinary least squares and extrapolates.
func linearTrendForecast(y []float64, horizon int) []float64 {
	n := len(y)
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}

	xMean, _ := stats.Mean(x)
	xStd, _ := stats.StandardDeviationPopulation(x)
	if xStd == 0 {
		xStd = 1
	}
	for i := range x {
		x[i] = (x[i] - xMean) / xStd
	}

	yMean, _ := stats.Mean(y)
	var covXY, varX float64
	for i := range x {
		covXY += x[i] * (y[i] - yMean)
		varX += x[i] * x[i]
	}
	slope := 0.0
	if varX != 0 {
		slope = covXY / varX
	}
	intercept := yMean

	preds := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		fx := (float64(n+h) - xMean) / xStd
		preds[h] = slope*fx + intercept
	}
	return preds
}

// holtForecast fits double exponential smoothing (level + trend) over the
// full history, selecting smoothing weights by one-step squared-error grid
// search, then projects the fitted level and trend forward.
func holtForecast(y []float64, horizon int) []float64 {
	if len(y) == 1 {
		return repeatValue(y[0], horizon)
	}

	bestSSE := math.Inf(1)
	var bestLevel, bestTrend float64

	for alpha := 0.05; alpha < 1.0; alpha += 0.05 {
		for beta := 0.05; beta < 1.0; beta += 0.05 {
			level, trend := y[0], y[1]-y[0]
			sse := 0.0
			for i := 1; i < len(y); i++ {
				e := y[i] - (level + trend)
				sse += e * e
				newLevel := alpha*y[i] + (1-alpha)*(level+trend)
				trend = beta*(newLevel-level) + (1-beta)*trend
				level = newLevel
			}
			if sse < bestSSE {
				bestSSE = sse
				bestLevel, bestTrend = level, trend
			}
		}
	}

	preds := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		preds[h] = bestLevel + float64(h+1)*bestTrend
	}
	return preds
}

// holtWintersForecast fits triple exponential smoothing with additive
// trend and seasonality, weights chosen by coarse grid search.
func holtWintersForecast(y []float64, period, horizon int) ([]float64, error) {
	if period < 2 {
		return nil, computationErrorf("holt_winters needs a seasonal period of at least 2")
	}
	if len(y) < period {
		return nil, computationErrorf("holt_winters needs at least one full season of history (period %d, got %d points)", period, len(y))
	}

	grid := []float64{0.1, 0.3, 0.5, 0.7, 0.9}
	bestSSE := math.Inf(1)
	var bestLevel, bestTrend float64
	var bestSeasonal []float64

	for _, alpha := range grid {
		for _, beta := range grid {
			for _, gamma := range grid {
				level, trend, seasonal, sse := holtWintersFit(y, period, alpha, beta, gamma)
				if sse < bestSSE {
					bestSSE = sse
					bestLevel, bestTrend = level, trend
					bestSeasonal = seasonal
				}
			}
		}
	}

	if bestSeasonal == nil {
		return nil, computationErrorf("holt_winters fit failed to converge")
	}

	n := len(y)
	preds := make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		preds[h-1] = bestLevel + float64(h)*bestTrend + bestSeasonal[(n+h-1)%period]
	}
	return preds, nil
}

func holtWintersFit(y []float64, period int, alpha, beta, gamma float64) (float64, float64, []float64, float64) {
	level, _ := stats.Mean(y[:period])
	trend := 0.0
	if len(y) >= 2*period {
		secondSeason, _ := stats.Mean(y[period : 2*period])
		trend = (secondSeason - level) / float64(period)
	}
	seasonal := make([]float64, period)
	for i := 0; i < period; i++ {
		seasonal[i] = y[i] - level
	}

	sse := 0.0
	for t := 0; t < len(y); t++ {
		idx := t % period
		forecast := level + trend + seasonal[idx]
		e := y[t] - forecast
		sse += e * e

		prevLevel := level
		level = alpha*(y[t]-seasonal[idx]) + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
		seasonal[idx] = gamma*(y[t]-level) + (1-gamma)*seasonal[idx]
	}
	return level, trend, seasonal, sse
}

// detectSeasonalPeriods computes the autocorrelation function up to a
// bounded max lag and takes the strongest local maximum above a 0.1
// threshold, falling back to a size-based heuristic when no clear peak
// exists.
func detectSeasonalPeriods(y []float64, maxPeriod int) int {
	n := len(y)
	if n < 4 {
		return 7
	}
	if maxPeriod > n/2 {
		maxPeriod = n / 2
	}
	if maxPeriod < 2 {
		return 7
	}

	mean, _ := stats.Mean(y)
	variance, err := stats.PopulationVariance(y)
	if err != nil || variance == 0 {
		return 7
	}

	acf := make([]float64, maxPeriod)
	for lag := 1; lag <= maxPeriod; lag++ {
		c := 0.0
		for i := 0; i < n-lag; i++ {
			c += (y[i] - mean) * (y[i+lag] - mean)
		}
		acf[lag-1] = c / float64(n-lag) / variance
	}

	bestLag, bestCorr := 0, 0.0
	for i := 1; i < len(acf)-1; i++ {
		if acf[i] > acf[i-1] && acf[i] > acf[i+1] && acf[i] > 0.1 && acf[i] > bestCorr {
			bestLag, bestCorr = i+1, acf[i]
		}
	}
	if bestLag >= 2 && bestLag <= maxPeriod {
		return bestLag
	}

	switch {
	case n >= 365:
		return 365
	case n >= 52:
		return 52
	case n >= 30:
		return 30
	case n >= 14:
		return 14
	default:
		return 7
	}
}

func buildForecastTable(tsCol string, series *forecastSeries, futureTimes []any, preds []float64, combine bool) *Table {
	tsType := ColumnTypeInt
	if series.isDatetime {
		tsType = ColumnTypeTimestamp
	}

	columns := []Column{
		{Name: tsCol, Type: tsType},
		{Name: "forecast", Type: ColumnTypeFloat},
	}
	if combine {
		columns = append(columns, Column{Name: "source", Type: ColumnTypeString})
	}

	var rows []Row
	if combine {
		for i, ts := range series.times {
			rows = append(rows, Row{tsCol: ts, "forecast": series.values[i], "source": "history"})
		}
	}
	for i, ts := range futureTimes {
		row := Row{tsCol: ts, "forecast": preds[i]}
		if combine {
			row["source"] = "forecast"
		}
		rows = append(rows, row)
	}

	return NewTable(columns, rows)
}

// autoPredict is the convenience path: Holt-Winters with an auto-detected
// seasonal period, falling back to Holt when the seasonal fit fails,
// always returning {date, value, is_historic} rows.
func autoPredict(input *Table, p forecastParams) (*Table, error) {
	series, err := extractSeries(input, p.TSCol, p.Target)
	if err != nil {
		return nil, err
	}
	futureTimes, err := futureIndex(series, p.Horizon, p.Freq)
	if err != nil {
		return nil, err
	}

	hw := p
	hw.Method = "holt_winters"
	hw.SeasonalPeriods = nil
	preds, err := forecastValues(series.values, hw)
	if err != nil {
		fallback := p
		fallback.Method = "holt"
		preds, err = forecastValues(series.values, fallback)
		if err != nil {
			return nil, err
		}
	}

	columns := []Column{
		{Name: "date", Type: ColumnTypeTimestamp},
		{Name: "value", Type: ColumnTypeFloat},
		{Name: "is_historic", Type: ColumnTypeBool},
	}
	if !series.isDatetime {
		columns[0].Type = ColumnTypeInt
	}

	var rows []Row
	for i, ts := range series.times {
		rows = append(rows, Row{"date": ts, "value": series.values[i], "is_historic": true})
	}
	for i, ts := range futureTimes {
		rows = append(rows, Row{"date": ts, "value": preds[i], "is_historic": false})
	}
	return NewTable(columns, rows), nil
}
