package indicator

import (
	"errors"
	"math"

	"kimp/internal/market"
)

// minCandles is the hard floor for a full computation: EMA(60) needs the
// whole lookback, so shorter series yield no bundle at all.
const minCandles = 60

// ErrInsufficientData signals fewer than 60 candles. Callers treat it as
// "no signal this cycle", never as a partial result.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// Trend labels derived from the composite score.
const (
	TrendStrongUp   = "strong_up"
	TrendUp         = "up"
	TrendSideways   = "sideways"
	TrendDown       = "down"
	TrendStrongDown = "strong_down"
)

// Signal labels derived from the composite score.
const (
	SignalBuy  = "buy"
	SignalSell = "sell"
	SignalHold = "hold"
)

// Bundle is the full indicator snapshot for one candle series. It is a
// derived value recomputed from scratch every cycle and never persisted
// as mutable state. Prices and percentages are rounded to 2 decimals,
// MACD components to 6; the composite score was accumulated from the
// unrounded values.
type Bundle struct {
	RSI         float64 `json:"rsi"`
	MACD        float64 `json:"macd"`
	MACDSignal  float64 `json:"macd_signal"`
	MACDHist    float64 `json:"macd_hist"`
	BBUpper     float64 `json:"bb_upper"`
	BBMid       float64 `json:"bb_mid"`
	BBLower     float64 `json:"bb_lower"`
	EMA5        float64 `json:"ema5"`
	EMA20       float64 `json:"ema20"`
	EMA60       float64 `json:"ema60"`
	EMA120      float64 `json:"ema120"`
	VolumeRatio float64 `json:"volume_ratio"`
	StochK      float64 `json:"stoch_k"`
	StochD      float64 `json:"stoch_d"`
	ATR         float64 `json:"atr"`
	Trend       string  `json:"trend"`
	Signal      string  `json:"signal"`
	Score       float64 `json:"score"`
}

// Compute derives the indicator bundle from an oldest-first candle series.
func Compute(candles []market.Candle) (Bundle, error) {
	if len(candles) < minCandles {
		return Bundle{}, ErrInsufficientData
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	price := closes[n-1]

	rsi := rsi14(closes)

	ema12 := ema(closes, 12)
	ema26 := ema(closes, 26)
	macdLine := make([]float64, n)
	for i := range macdLine {
		macdLine[i] = ema12[i] - ema26[i]
	}
	signalLine := ema(macdLine, 9)
	macdVal := macdLine[n-1]
	signalVal := signalLine[n-1]
	macdHist := macdVal - signalVal

	bbMid := mean(closes[n-20:])
	bbStd := stddev(closes[n-20:], bbMid)
	bbUpper := bbMid + 2*bbStd
	bbLower := bbMid - 2*bbStd

	ema5 := ema(closes, 5)[n-1]
	ema20 := ema(closes, 20)[n-1]
	ema60 := lastEMA(closes, 60)
	ema120 := lastEMA(closes, 120)

	volRatio := 1.0
	if avg := mean(volumes[n-20:]); avg > 0 {
		volRatio = volumes[n-1] / avg
	}

	stochK, stochD := stochastic(closes, highs, lows)
	atr := atr14(closes, highs, lows)

	score := compositeScore(price, rsi, macdVal, signalVal, macdHist,
		bbUpper, bbLower, ema5, ema20, ema60, stochK, stochD, volRatio)

	return Bundle{
		RSI:         round2(rsi),
		MACD:        round6(macdVal),
		MACDSignal:  round6(signalVal),
		MACDHist:    round6(macdHist),
		BBUpper:     round2(bbUpper),
		BBMid:       round2(bbMid),
		BBLower:     round2(bbLower),
		EMA5:        round2(ema5),
		EMA20:       round2(ema20),
		EMA60:       round2(ema60),
		EMA120:      round2(ema120),
		VolumeRatio: round2(volRatio),
		StochK:      round2(stochK),
		StochD:      round2(stochD),
		ATR:         round2(atr),
		Trend:       trendLabel(score),
		Signal:      signalLabel(score),
		Score:       round2(score),
	}, nil
}

// ema runs the exponential recurrence with k = 2/(period+1), seeded with
// the first value of the series.
func ema(values []float64, period int) []float64 {
	k := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// lastEMA falls back to the latest close when the series is shorter than
// the period. Unreachable under the 60-candle floor for EMA(60); EMA(120)
// uses it routinely.
func lastEMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return closes[len(closes)-1]
	}
	return ema(closes, period)[len(closes)-1]
}

// rsi14 averages the last 14 simple close-to-close gains and losses.
// A zero average loss means a one-sided move: RSI pegs at 100.
func rsi14(closes []float64) float64 {
	n := len(closes)
	var gainSum, lossSum float64
	for i := n - 14; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / 14
	avgLoss := lossSum / 14
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// stochastic returns %K over the last 14 bars and %D as the mean of three
// raw %K values computed over windows shifted back one bar at a time.
func stochastic(closes, highs, lows []float64) (float64, float64) {
	n := len(closes)
	k := rawStochK(closes[n-1], highs[n-14:], lows[n-14:])

	var sum float64
	for i := 0; i < 3; i++ {
		idx := n - 1 - i
		sum += rawStochK(closes[idx], highs[idx-14:idx], lows[idx-14:idx])
	}
	return k, sum / 3
}

func rawStochK(close float64, highs, lows []float64) float64 {
	hi := highs[0]
	lo := lows[0]
	for _, h := range highs[1:] {
		hi = math.Max(hi, h)
	}
	for _, l := range lows[1:] {
		lo = math.Min(lo, l)
	}
	if hi == lo {
		return 50
	}
	return (close - lo) / (hi - lo) * 100
}

// atr14 is the plain mean of the true range over the last 14 bars.
func atr14(closes, highs, lows []float64) float64 {
	n := len(closes)
	var sum float64
	for i := n - 14; i < n; i++ {
		prevClose := closes[i-1]
		tr := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-prevClose), math.Abs(lows[i]-prevClose)))
		sum += tr
	}
	return sum / 14
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64, avg float64) float64 {
	var sum float64
	for _, v := range values {
		d := v - avg
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
