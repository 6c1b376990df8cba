package indicator

// compositeScore combines the weighted signal votes into a directional
// score. The weights sum to 100, so the result stays within [-100, 100].
func compositeScore(price, rsi, macdVal, signalVal, macdHist,
	bbUpper, bbLower, ema5, ema20, ema60, stochK, stochD, volRatio float64) float64 {

	var score float64

	// RSI, weight 25: tiered oversold/overbought votes.
	switch {
	case rsi < 30:
		score += 25
	case rsi < 40:
		score += 12
	case rsi > 70:
		score -= 25
	case rsi > 60:
		score -= 12
	}

	// MACD, weight 20: histogram and line-vs-signal must agree.
	if macdHist > 0 && macdVal > signalVal {
		score += 20
	} else if macdHist < 0 && macdVal < signalVal {
		score -= 20
	}

	// Bollinger, weight 15: full vote outside the bands; inside, a linear
	// vote scaled by the distance from the midpoint.
	switch {
	case price < bbLower:
		score += 15
	case price > bbUpper:
		score -= 15
	case bbUpper > bbLower:
		bbPct := (price - bbLower) / (bbUpper - bbLower)
		score += (0.5 - bbPct) * 20
	}

	// EMA ordering, weight 20: full stack or partial alignment.
	switch {
	case ema5 > ema20 && ema20 > ema60:
		score += 20
	case ema5 > ema20:
		score += 10
	case ema5 < ema20 && ema20 < ema60:
		score -= 20
	case ema5 < ema20:
		score -= 10
	}

	// Stochastic, weight 10: both lines in the extreme zones.
	if stochK < 20 && stochD < 20 {
		score += 10
	} else if stochK > 80 && stochD > 80 {
		score -= 10
	}

	// Volume confirmation, weight 10: only reinforces an existing lean.
	if volRatio > 1.5 {
		if score > 0 {
			score += 10
		} else if score < 0 {
			score -= 10
		}
	}

	return score
}

func trendLabel(score float64) string {
	switch {
	case score >= 50:
		return TrendStrongUp
	case score >= 20:
		return TrendUp
	case score <= -50:
		return TrendStrongDown
	case score <= -20:
		return TrendDown
	default:
		return TrendSideways
	}
}

func signalLabel(score float64) string {
	switch {
	case score >= 40:
		return SignalBuy
	case score <= -40:
		return SignalSell
	default:
		return SignalHold
	}
}
