// Package analytics derives the trade performance metric catalogue for one
// (clientId, magicNumber) partition. The engine is a pure, synchronous
// computation over an immutable snapshot: a small constant number of linear
// passes, no internal shared state, safe to call concurrently for different
// partitions and repeatedly for the same one.
package analytics

import (
	"github.com/quantora/trademetrics/internal/types"
	"github.com/shopspring/decimal"
)

// Compute assembles the full metrics report for a partition snapshot.
//
// The only failure mode is a schema error (close reason column absent from
// the source schema), surfaced before any metric is computed. Everything
// else is total: an empty partition yields a complete report of zeros and
// "not available" floating drawdown markers, never an error.
func Compute(p types.Partition) (types.MetricsReport, error) {
	closeReasons, err := closeReasonBreakdown(&p)
	if err != nil {
		return types.MetricsReport{}, err
	}

	buy := p.Filter(types.SideBuy)
	sell := p.Filter(types.SideSell)

	report := types.MetricsReport{
		ClientID:    p.ClientID,
		MagicNumber: p.MagicNumber,

		Summary:    summarize(&p),
		Profit:     profitMetrics(p.Records),
		ProfitBuy:  profitMetrics(buy),
		ProfitSell: profitMetrics(sell),

		Drawdown: aggregateDrawdown(&p),

		FloatingDrawdown:     aggregateFloatingDrawdown(p.Records),
		FloatingDrawdownBuy:  aggregateFloatingDrawdown(buy),
		FloatingDrawdownSell: aggregateFloatingDrawdown(sell),

		Streaks:     aggregateStreaks(p.Records),
		StreaksBuy:  aggregateStreaks(buy),
		StreaksSell: aggregateStreaks(sell),

		Breakdown:    sideBreakdown(&p),
		CloseReasons: closeReasons,
		Time:         timeMetrics(&p),
		Costs:        costMetrics(p.Records),
	}

	report.Drawdown.BalanceOverMaxFloating = BalanceOverMaxDrawdown(
		report.Summary.TotalProfit,
		maxFloatingDrawdown(p.Records),
	)

	roundReport(&report)

	return report, nil
}

func summarize(p *types.Partition) types.Summary {
	summary := types.Summary{
		TradeCount:  len(p.Records),
		TotalProfit: TotalProfit(p.Records),
	}

	for i, record := range p.Records {
		if record.Volume > summary.MostVolume {
			summary.MostVolume = record.Volume
		}

		if i == 0 || record.OpenTime.Before(summary.FirstOpenTime) {
			summary.FirstOpenTime = record.OpenTime
		}

		if record.CloseTime.After(summary.LastCloseTime) {
			summary.LastCloseTime = record.CloseTime
		}
	}

	return summary
}

// round2 rounds to two decimal places and collapses negative zero so a
// guarded percentage can never surface as -0.0.
func round2(value float64) float64 {
	rounded, _ := decimal.NewFromFloat(value).Round(2).Float64()
	if rounded == 0 {
		return 0
	}

	return rounded
}

func roundMetric(m *types.Metric) {
	m.Value = round2(m.Value)
	m.Percent = round2(m.Percent)
}

func roundCount(m *types.CountMetric) {
	m.Percent = round2(m.Percent)
}

func roundStreak(m *types.StreakMetric) {
	m.Sum = round2(m.Sum)
}

func roundFloating(m *types.FloatingDrawdownMetrics) {
	for _, v := range []*types.FloatingDrawdownValue{&m.Current, &m.Max, &m.Min} {
		v.Points = round2(v.Points)
		v.Currency = round2(v.Currency)
	}
}

func roundProfit(m *types.ProfitMetrics) {
	m.ProfitFactor = round2(m.ProfitFactor)
	roundCount(&m.TradesWon)
	m.ExpectedPayoff = round2(m.ExpectedPayoff)
	m.NetProfit = round2(m.NetProfit)
	m.NetLoss = round2(m.NetLoss)
}

func roundStreaks(m *types.StreakMetrics) {
	roundStreak(&m.WorstLosing)
	roundStreak(&m.BestWinning)
	roundStreak(&m.TotalWinning)
}

// roundReport applies the 2dp rule to every floating value in the report.
func roundReport(report *types.MetricsReport) {
	report.Summary.MostVolume = round2(report.Summary.MostVolume)
	report.Summary.TotalProfit = round2(report.Summary.TotalProfit)

	roundProfit(&report.Profit)
	roundProfit(&report.ProfitBuy)
	roundProfit(&report.ProfitSell)

	roundMetric(&report.Drawdown.Max)
	report.Drawdown.Min = round2(report.Drawdown.Min)
	roundMetric(&report.Drawdown.BuyShare)
	roundMetric(&report.Drawdown.SellShare)
	roundMetric(&report.Drawdown.Buy.Max)
	report.Drawdown.Buy.Min = round2(report.Drawdown.Buy.Min)
	roundMetric(&report.Drawdown.Sell.Max)
	report.Drawdown.Sell.Min = round2(report.Drawdown.Sell.Min)
	report.Drawdown.BalanceOverMaxFloating = round2(report.Drawdown.BalanceOverMaxFloating)

	roundFloating(&report.FloatingDrawdown)
	roundFloating(&report.FloatingDrawdownBuy)
	roundFloating(&report.FloatingDrawdownSell)

	roundStreaks(&report.Streaks)
	roundStreaks(&report.StreaksBuy)
	roundStreaks(&report.StreaksSell)

	roundCount(&report.Breakdown.Quantity.Buy)
	roundCount(&report.Breakdown.Quantity.Sell)
	roundCount(&report.Breakdown.Profitability.Buy)
	roundCount(&report.Breakdown.Profitability.Sell)
	roundMetric(&report.Breakdown.ProfitShare.Buy)
	roundMetric(&report.Breakdown.ProfitShare.Sell)

	roundCount(&report.CloseReasons.Order)
	roundCount(&report.CloseReasons.StopLoss)
	roundCount(&report.CloseReasons.TakeProfit)

	report.Time.All.Percent = round2(report.Time.All.Percent)
	report.Time.Buy.Percent = round2(report.Time.Buy.Percent)
	report.Time.Sell.Percent = round2(report.Time.Sell.Percent)

	roundMetric(&report.Costs.Commission)
	roundMetric(&report.Costs.Swap)
}
