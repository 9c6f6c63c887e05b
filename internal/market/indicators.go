package market

import "math"

// rsi computes Wilder's relative strength index over the full series and
// returns the value for the final bar. Returns 50 when the series is too
// short to say anything.
func rsi(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d >= 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing over the remainder of the series.
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d >= 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// bollinger computes the simple moving average of the last period closes and
// the bands at width standard deviations around it.
func bollinger(closes []float64, period int, width float64) (mid, high, low float64) {
	if len(closes) < period {
		return 0, 0, 0
	}
	window := closes[len(closes)-period:]

	var sum float64
	for _, c := range window {
		sum += c
	}
	mid = sum / float64(period)

	var variance float64
	for _, c := range window {
		variance += (c - mid) * (c - mid)
	}
	sigma := math.Sqrt(variance / float64(period))

	return mid, mid + width*sigma, mid - width*sigma
}

// atr computes Wilder's average true range for the final bar. Returns 0 when
// the series is too short, which callers treat as "ATR unavailable".
func atr(highs, lows, closes []float64, period int) float64 {
	if len(closes) <= period {
		return 0
	}

	trueRange := func(i int) float64 {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		return tr
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(i)
	}
	value := sum / float64(period)

	for i := period + 1; i < len(closes); i++ {
		value = (value*float64(period-1) + trueRange(i)) / float64(period)
	}
	return value
}
