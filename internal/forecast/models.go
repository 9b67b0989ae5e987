package forecast

import "math"

// wmaWeights is the fixed weight vector applied to the trailing window,
// oldest to newest. weightedMean normalizes, so the vector does not have to
// sum to exactly 1.
var wmaWeights = []float64{0.05, 0.10, 0.10, 0.15, 0.15, 0.20, 0.25}

// windowSize is the trailing-observation window used by the averaging
// models and the minimum history the regression model accepts.
const windowSize = 7

// regression holds an ordinary-least-squares fit over a day-index series.
type regression struct {
	slope     float64
	intercept float64
	r2        float64
}

// fitLinear fits amount = slope*dayIndex + intercept and computes the
// coefficient of determination. A zero-variance series fits itself exactly,
// so R² is 1 there rather than 0/0.
func fitLinear(x []int, y []float64) regression {
	n := float64(len(x))
	if n == 0 || len(x) != len(y) {
		return regression{}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i := range x {
		xi := float64(x[i])
		sumX += xi
		sumY += y[i]
		sumXY += xi * y[i]
		sumXX += xi * xi
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return regression{intercept: sumY / n, r2: 1}
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	yMean := sumY / n
	var total, explained float64
	for i := range x {
		predicted := slope*float64(x[i]) + intercept
		total += (y[i] - yMean) * (y[i] - yMean)
		explained += (predicted - yMean) * (predicted - yMean)
	}

	r2 := 1.0
	if total > 0 {
		r2 = explained / total
	}
	return regression{slope: slope, intercept: intercept, r2: r2}
}

// linearConfidence is the source heuristic: lower explained variance means a
// wider band, scaled by the historical peak. It is not a calibrated
// statistical prediction interval.
func linearConfidence(r2, maxAmount float64) float64 {
	residual := 1 - r2
	if residual < 0 {
		residual = 0
	}
	return math.Sqrt(residual) * maxAmount * 0.1
}

// mean is the arithmetic mean of vals; zero for an empty slice.
func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// stdDevAround is the population standard deviation of vals around center.
func stdDevAround(vals []float64, center float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		d := v - center
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)))
}

// weightedMean applies the normalized weight vector to a window of equal
// length, oldest value first.
func weightedMean(window, weights []float64) float64 {
	var weightSum float64
	for _, w := range weights {
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}

	var avg float64
	for i, v := range window {
		avg += v * (weights[i] / weightSum)
	}
	return avg
}

// padWindow left-pads vals with their own mean until the window is size
// long. Used by the weighted model when fewer than a full window of history
// exists.
func padWindow(vals []float64, size int) []float64 {
	if len(vals) >= size {
		return vals[len(vals)-size:]
	}
	avg := mean(vals)
	padded := make([]float64, 0, size)
	for i := len(vals); i < size; i++ {
		padded = append(padded, avg)
	}
	return append(padded, vals...)
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func maxOf(vals []float64) float64 {
	var m float64
	for i, v := range vals {
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}
