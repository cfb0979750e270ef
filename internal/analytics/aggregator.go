package analytics

import (
	"math"

	"github.com/quantora/trademetrics/internal/types"
)

// equityScan is the accumulator threaded through one linear pass over a
// profit sequence. Drawdown is measured against the running peak of the
// cumulative equity curve, not against the raw profit column.
type equityScan struct {
	equity           float64
	peak             float64
	maxDrawdown      float64
	minDrawdown      float64 // smallest positive drawdown seen; 0 if never in drawdown
	maxDrawdownIndex int     // first position of the maximum drawdown; -1 if none
	underwaterCount  int     // trades whose profit sits strictly below the peak at their position
}

// scanEquity folds the profit sequence into drawdown statistics in a single
// pass. Order matters: the caller must hand profits in insertion order.
func scanEquity(profits []float64) equityScan {
	scan := equityScan{maxDrawdownIndex: -1}

	for i, profit := range profits {
		scan.equity += profit
		if scan.equity > scan.peak {
			scan.peak = scan.equity
		}

		drawdown := scan.peak - scan.equity
		if drawdown > scan.maxDrawdown {
			scan.maxDrawdown = drawdown
			scan.maxDrawdownIndex = i
		}

		if drawdown > 0 && (scan.minDrawdown == 0 || drawdown < scan.minDrawdown) {
			scan.minDrawdown = drawdown
		}

		if profit < scan.peak {
			scan.underwaterCount++
		}
	}

	return scan
}

// drawdownPercent normalizes a drawdown against a peak as a percentage
// clamped to [0, 100]. A non-positive peak means the curve never went above
// zero, so the percentage is 0.
func drawdownPercent(drawdown, peak float64) float64 {
	if peak <= 0 {
		return 0
	}

	percent := drawdown / peak * 100
	if percent < 0 {
		return 0
	}

	if percent > 100 {
		return 100
	}

	return percent
}

// drawdownReconciliationTolerance is the largest acceptable gap between the
// combined-curve drawdown and the sum of the per-side drawdowns before the
// per-side decomposition is taken as authoritative.
const drawdownReconciliationTolerance = 0.01

// aggregateDrawdown runs the combined and per-side equity scans and
// reconciles them. The per-side curves are local to each side's filtered
// subsequence, not slices of the combined curve.
func aggregateDrawdown(p *types.Partition) types.DrawdownMetrics {
	all := profitsOf(p.Records)
	buy := profitsOf(p.Filter(types.SideBuy))
	sell := profitsOf(p.Filter(types.SideSell))

	total := scanEquity(all)
	buyScan := scanEquity(buy)
	sellScan := scanEquity(sell)

	totalDrawdown := total.maxDrawdown
	sideSum := buyScan.maxDrawdown + sellScan.maxDrawdown

	if math.Abs(totalDrawdown-sideSum) > drawdownReconciliationTolerance {
		totalDrawdown = sideSum
	}

	totalPercent := drawdownPercent(totalDrawdown, total.peak)

	sharePercent := func(side float64) float64 {
		if totalDrawdown <= 0 {
			return 0
		}

		return side / totalDrawdown * totalPercent
	}

	metrics := types.DrawdownMetrics{
		Max: types.Metric{Value: totalDrawdown, Percent: totalPercent},
		Min: total.minDrawdown,
		BuyShare: types.Metric{
			Value:   buyScan.maxDrawdown,
			Percent: sharePercent(buyScan.maxDrawdown),
		},
		SellShare: types.Metric{
			Value:   sellScan.maxDrawdown,
			Percent: sharePercent(sellScan.maxDrawdown),
		},
		Buy: types.SideDrawdown{
			Max: types.Metric{
				Value:   buyScan.maxDrawdown,
				Percent: drawdownPercent(buyScan.maxDrawdown, buyScan.peak),
			},
			Min: buyScan.minDrawdown,
		},
		Sell: types.SideDrawdown{
			Max: types.Metric{
				Value:   sellScan.maxDrawdown,
				Percent: drawdownPercent(sellScan.maxDrawdown, sellScan.peak),
			},
			Min: sellScan.minDrawdown,
		},
		UnderwaterTradeCount: total.underwaterCount,
	}

	if total.maxDrawdownIndex >= 0 {
		metrics.MaxTradeTime = types.NewOpenTime(p.Records[total.maxDrawdownIndex].Duration)
	}

	return metrics
}

// losingStreak finds the most negative run of consecutive losing trades
// (profit < 0). A run only replaces the recorded one when its sum is
// strictly more negative, so ties keep the first run.
func losingStreak(profits []float64) types.StreakMetric {
	var best, run types.StreakMetric

	flush := func() {
		if run.Count > 0 && run.Sum < best.Sum {
			best = run
		}

		run = types.StreakMetric{}
	}

	for _, profit := range profits {
		if profit < 0 {
			run.Sum += profit
			run.Count++

			continue
		}

		flush()
	}

	// A still-open trailing run competes too.
	flush()

	return best
}

// winningStreak mirrors losingStreak for consecutive winning trades
// (profit > 0); strictly greater sums win, ties keep the first run.
func winningStreak(profits []float64) types.StreakMetric {
	var best, run types.StreakMetric

	flush := func() {
		if run.Count > 0 && run.Sum > best.Sum {
			best = run
		}

		run = types.StreakMetric{}
	}

	for _, profit := range profits {
		if profit > 0 {
			run.Sum += profit
			run.Count++

			continue
		}

		flush()
	}

	flush()

	return best
}

// totalWinning is the sum and count of every winning trade in the subset.
// It is not a consecutive run; earlier reports published this figure as the
// "winning streak" and clients still expect it.
func totalWinning(profits []float64) types.StreakMetric {
	var total types.StreakMetric

	for _, profit := range profits {
		if profit > 0 {
			total.Sum += profit
			total.Count++
		}
	}

	return total
}

func aggregateStreaks(records []types.TradeRecord) types.StreakMetrics {
	profits := profitsOf(records)

	return types.StreakMetrics{
		WorstLosing:  losingStreak(profits),
		BestWinning:  winningStreak(profits),
		TotalWinning: totalWinning(profits),
	}
}

// aggregateFloatingDrawdown reports the current (last), maximum and minimum
// of the externally supplied floating drawdown series. Nothing here is
// derived from closed-trade profit. Subsets without readings report the
// "not available" sentinel.
func aggregateFloatingDrawdown(records []types.TradeRecord) types.FloatingDrawdownMetrics {
	var metrics types.FloatingDrawdownMetrics

	for _, record := range records {
		if record.FloatingDrawdown.IsNone() {
			continue
		}

		reading := types.FloatingDrawdownValue{
			Available: true,
			Points:    record.FloatingDrawdown.Unwrap(),
			Currency:  record.FloatingDrawdownCurrency.TakeOr(0),
		}

		metrics.Current = reading

		if !metrics.Max.Available || reading.Points > metrics.Max.Points {
			metrics.Max = reading
		}

		if !metrics.Min.Available || reading.Points < metrics.Min.Points {
			metrics.Min = reading
		}
	}

	return metrics
}

// maxFloatingDrawdown returns the largest floating drawdown reading of the
// partition, or 0 when no readings exist.
func maxFloatingDrawdown(records []types.TradeRecord) float64 {
	metrics := aggregateFloatingDrawdown(records)
	if !metrics.Max.Available {
		return 0
	}

	return metrics.Max.Points
}

func profitsOf(records []types.TradeRecord) []float64 {
	profits := make([]float64, len(records))
	for i, record := range records {
		profits[i] = record.Profit
	}

	return profits
}
