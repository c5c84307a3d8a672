package dataflow

import "math"

// arimaForecast fits an ARIMA(p,d,q) model by Hannan-Rissanen two-stage
// least squares: a long autoregression supplies innovation estimates, then
// the AR and MA coefficients come from one regression of the differenced
// series on its own lags and the lagged innovations. A singular system is
// reported as a fit-convergence failure.
func arimaForecast(y []float64, p, d, q, horizon int) ([]float64, error) {
	if p < 0 || d < 0 || q < 0 {
		return nil, configErrorf("arima order terms must be non-negative")
	}
	if p == 0 && q == 0 && d == 0 {
		return nil, configErrorf("arima order (0,0,0) fits nothing")
	}

	z := append([]float64(nil), y...)
	// Keep the trailing value of each differencing level to integrate the
	// forecast back.
	tails := make([]float64, 0, d)
	for i := 0; i < d; i++ {
		if len(z) < 2 {
			return nil, computationErrorf("arima fitting failed: series too short after differencing; try different order parameters")
		}
		tails = append(tails, z[len(z)-1])
		z = difference(z)
	}

	n := len(z)
	maxLag := p
	if q > maxLag {
		maxLag = q
	}
	if n-maxLag < p+q+1 {
		return nil, computationErrorf("arima fitting failed: %d observations cannot support order (%d,%d,%d); try different order parameters", len(y), p, d, q)
	}

	innovations := make([]float64, n)
	if q > 0 {
		longLag := p + q + 1
		if longLag > n/2 {
			longLag = n / 2
		}
		if longLag < 1 {
			longLag = 1
		}
		arCoef, err := fitAR(z, longLag)
		if err != nil {
			return nil, computationErrorf("arima fitting failed: %v; try different order parameters", err)
		}
		for t := longLag; t < n; t++ {
			innovations[t] = z[t] - arPredict(arCoef, z, t)
		}
	}

	// Stage two: z[t] ~ c + AR lags + MA lags of the innovation estimates.
	var rowsX [][]float64
	var rowsY []float64
	for t := maxLag; t < n; t++ {
		row := make([]float64, 0, 1+p+q)
		row = append(row, 1)
		for i := 1; i <= p; i++ {
			row = append(row, z[t-i])
		}
		for j := 1; j <= q; j++ {
			row = append(row, innovations[t-j])
		}
		rowsX = append(rowsX, row)
		rowsY = append(rowsY, z[t])
	}

	coef, err := solveLeastSquares(rowsX, rowsY)
	if err != nil {
		return nil, computationErrorf("arima fitting failed: %v; try different order parameters", err)
	}

	constant := coef[0]
	phi := coef[1 : 1+p]
	theta := coef[1+p:]

	// Recompute residuals under the fitted model for the MA recursion.
	residuals := make([]float64, n, n+horizon)
	for t := maxLag; t < n; t++ {
		predicted := constant
		for i := 1; i <= p; i++ {
			predicted += phi[i-1] * z[t-i]
		}
		for j := 1; j <= q; j++ {
			predicted += theta[j-1] * residuals[t-j]
		}
		residuals[t] = z[t] - predicted
	}

	extended := append([]float64(nil), z...)
	preds := make([]float64, 0, horizon)
	for h := 0; h < horizon; h++ {
		t := len(extended)
		predicted := constant
		for i := 1; i <= p; i++ {
			predicted += phi[i-1] * extended[t-i]
		}
		for j := 1; j <= q; j++ {
			if t-j < len(residuals) {
				predicted += theta[j-1] * residuals[t-j]
			}
		}
		if math.IsNaN(predicted) || math.IsInf(predicted, 0) {
			return nil, computationErrorf("arima fitting failed: forecast diverged; try different order parameters")
		}
		extended = append(extended, predicted)
		preds = append(preds, predicted)
	}

	// Integrate d times, innermost differencing level first.
	for i := d - 1; i >= 0; i-- {
		level := tails[i]
		for j := range preds {
			level += preds[j]
			preds[j] = level
		}
	}

	return preds, nil
}

func difference(y []float64) []float64 {
	out := make([]float64, len(y)-1)
	for i := 1; i < len(y); i++ {
		out[i-1] = y[i] - y[i-1]
	}
	return out
}

func fitAR(z []float64, lag int) ([]float64, error) {
	var rowsX [][]float64
	var rowsY []float64
	for t := lag; t < len(z); t++ {
		row := make([]float64, 0, lag+1)
		row = append(row, 1)
		for i := 1; i <= lag; i++ {
			row = append(row, z[t-i])
		}
		rowsX = append(rowsX, row)
		rowsY = append(rowsY, z[t])
	}
	return solveLeastSquares(rowsX, rowsY)
}

func arPredict(coef []float64, z []float64, t int) float64 {
	predicted := coef[0]
	for i := 1; i < len(coef); i++ {
		predicted += coef[i] * z[t-i]
	}
	return predicted
}

// solveLeastSquares solves min ||X b - y|| via the normal equations with
// Gaussian elimination and partial pivoting.
func solveLeastSquares(x [][]float64, y []float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, computationErrorf("empty design matrix")
	}
	k := len(x[0])
	if len(x) < k {
		return nil, computationErrorf("underdetermined system")
	}

	a := make([][]float64, k)
	b := make([]float64, k)
	for i := 0; i < k; i++ {
		a[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			for _, row := range x {
				a[i][j] += row[i] * row[j]
			}
		}
		for r, row := range x {
			b[i] += row[i] * y[r]
		}
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, computationErrorf("singular normal equations")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < k; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < k; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	solution := make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < k; j++ {
			sum -= a[i][j] * solution[j]
		}
		solution[i] = sum / a[i][i]
	}
	return solution, nil
}
