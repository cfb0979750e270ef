package analytics

import (
	"time"

	"github.com/quantora/trademetrics/internal/types"
	"github.com/quantora/trademetrics/pkg/errors"
	"github.com/shopspring/decimal"
)

// The ratio computer is a stateless set of aggregate calculations over a
// trade subset. Every division is guarded: once input passes validation the
// computation is total and never raises.

// sumProfit adds the profit of every record matching keep. Sums run through
// decimal so a long partition does not drift before the 2dp rounding.
func sumProfit(records []types.TradeRecord, keep func(float64) bool) float64 {
	sum := decimal.Zero

	for _, record := range records {
		if keep(record.Profit) {
			sum = sum.Add(decimal.NewFromFloat(record.Profit))
		}
	}

	result, _ := sum.Float64()

	return result
}

// NetProfit is the sum of all winning trades' profit.
func NetProfit(records []types.TradeRecord) float64 {
	return sumProfit(records, func(p float64) bool { return p > 0 })
}

// NetLoss is the sum of all losing trades' profit (a negative number).
func NetLoss(records []types.TradeRecord) float64 {
	return sumProfit(records, func(p float64) bool { return p < 0 })
}

// TotalProfit is the sum of every trade's profit.
func TotalProfit(records []types.TradeRecord) float64 {
	return sumProfit(records, func(float64) bool { return true })
}

// ProfitFactor is gross profit over the magnitude of gross loss; 0 when the
// subset has no losses.
func ProfitFactor(records []types.TradeRecord) float64 {
	grossLoss := -NetLoss(records)
	if grossLoss == 0 {
		return 0
	}

	return NetProfit(records) / grossLoss
}

// TradesWon counts winning trades and their share of the subset. Trades with
// profit exactly 0 count toward the total but are neither won nor lost, so
// the won and lost counts need not sum to the total.
func TradesWon(records []types.TradeRecord) types.CountMetric {
	won := 0

	for _, record := range records {
		if record.Profit > 0 {
			won++
		}
	}

	return types.CountMetric{
		Count:   won,
		Percent: percentOf(float64(won), float64(len(records))),
	}
}

// ExpectedPayoff is the mean profit per trade; 0 for an empty subset.
func ExpectedPayoff(records []types.TradeRecord) float64 {
	if len(records) == 0 {
		return 0
	}

	return TotalProfit(records) / float64(len(records))
}

// BalanceOverMaxDrawdown relates total profit to the worst floating
// drawdown reading; 0 when the denominator is 0.
func BalanceOverMaxDrawdown(totalProfit, maxFloatingDrawdown float64) float64 {
	if maxFloatingDrawdown == 0 {
		return 0
	}

	return totalProfit / maxFloatingDrawdown
}

func profitMetrics(records []types.TradeRecord) types.ProfitMetrics {
	return types.ProfitMetrics{
		ProfitFactor:   ProfitFactor(records),
		TradesWon:      TradesWon(records),
		ExpectedPayoff: ExpectedPayoff(records),
		NetProfit:      NetProfit(records),
		NetLoss:        NetLoss(records),
	}
}

// sideBreakdown computes the per-side quantity, profitability and
// profit-distribution splits.
func sideBreakdown(p *types.Partition) types.SideBreakdown {
	buy := p.Filter(types.SideBuy)
	sell := p.Filter(types.SideSell)

	total := len(p.Records)
	buyWon := TradesWon(buy).Count
	sellWon := TradesWon(sell).Count
	totalWon := buyWon + sellWon

	totalProfit := TotalProfit(p.Records)
	buyProfit := TotalProfit(buy)
	sellProfit := TotalProfit(sell)

	return types.SideBreakdown{
		Quantity: types.SideSplit{
			Buy:  types.CountMetric{Count: len(buy), Percent: percentOf(float64(len(buy)), float64(total))},
			Sell: types.CountMetric{Count: len(sell), Percent: percentOf(float64(len(sell)), float64(total))},
		},
		Profitability: types.SideSplit{
			Buy:  types.CountMetric{Count: buyWon, Percent: percentOf(float64(buyWon), float64(totalWon))},
			Sell: types.CountMetric{Count: sellWon, Percent: percentOf(float64(sellWon), float64(totalWon))},
		},
		ProfitShare: types.AmountSplit{
			Buy:  types.Metric{Value: buyProfit, Percent: percentOf(buyProfit, totalProfit)},
			Sell: types.Metric{Value: sellProfit, Percent: percentOf(sellProfit, totalProfit)},
		},
	}
}

// closeReasonBreakdown counts closures per reason. A partition whose source
// schema never carried the close reason column is a schema error; records
// that carry no individual reason fall back to the ORDER catch-all.
func closeReasonBreakdown(p *types.Partition) (types.CloseReasonMetrics, error) {
	if !p.HasColumn(types.ColumnCloseReason) {
		return types.CloseReasonMetrics{}, errors.Newf(
			errors.ErrCodeMissingCloseReason,
			"close reason column absent from partition %s/%d",
			p.ClientID, p.MagicNumber,
		)
	}

	var order, stopLoss, takeProfit int

	for _, record := range p.Records {
		switch record.CloseReason.TakeOr(types.CloseReasonOrder) {
		case types.CloseReasonStopLoss:
			stopLoss++
		case types.CloseReasonTakeProfit:
			takeProfit++
		default:
			order++
		}
	}

	total := float64(len(p.Records))

	return types.CloseReasonMetrics{
		Order:      types.CountMetric{Count: order, Percent: percentOf(float64(order), total)},
		StopLoss:   types.CountMetric{Count: stopLoss, Percent: percentOf(float64(stopLoss), total)},
		TakeProfit: types.CountMetric{Count: takeProfit, Percent: percentOf(float64(takeProfit), total)},
	}, nil
}

// scopeTime folds open durations into total/avg/max/min triples plus the
// subset's share of the whole partition's open time.
func scopeTime(records []types.TradeRecord, partitionTotal time.Duration) types.ScopeTime {
	if len(records) == 0 {
		return types.ScopeTime{}
	}

	var total, maxDuration time.Duration

	minDuration := records[0].Duration

	for _, record := range records {
		total += record.Duration

		if record.Duration > maxDuration {
			maxDuration = record.Duration
		}

		if record.Duration < minDuration {
			minDuration = record.Duration
		}
	}

	return types.ScopeTime{
		Total:   types.NewOpenTime(total),
		Avg:     types.NewOpenTime(total / time.Duration(len(records))),
		Max:     types.NewOpenTime(maxDuration),
		Min:     types.NewOpenTime(minDuration),
		Percent: percentOf(total.Minutes(), partitionTotal.Minutes()),
	}
}

func timeMetrics(p *types.Partition) types.TimeMetrics {
	var partitionTotal time.Duration
	for _, record := range p.Records {
		partitionTotal += record.Duration
	}

	return types.TimeMetrics{
		All:  scopeTime(p.Records, partitionTotal),
		Buy:  scopeTime(p.Filter(types.SideBuy), partitionTotal),
		Sell: scopeTime(p.Filter(types.SideSell), partitionTotal),
	}
}

// costMetrics sums commission and swap and relates each to total profit.
func costMetrics(records []types.TradeRecord) types.CostMetrics {
	commission := decimal.Zero
	swap := decimal.Zero

	for _, record := range records {
		commission = commission.Add(decimal.NewFromFloat(record.Commission))
		swap = swap.Add(decimal.NewFromFloat(record.Swap))
	}

	commissionSum, _ := commission.Float64()
	swapSum, _ := swap.Float64()
	totalProfit := TotalProfit(records)

	return types.CostMetrics{
		Commission: types.Metric{Value: commissionSum, Percent: percentOf(commissionSum, totalProfit)},
		Swap:       types.Metric{Value: swapSum, Percent: percentOf(swapSum, totalProfit)},
	}
}

// percentOf is the guarded percentage helper: exactly 0 whenever the
// numerator or denominator is 0, never NaN and never negative zero.
func percentOf(part, whole float64) float64 {
	if whole == 0 || part == 0 {
		return 0
	}

	return part / whole * 100
}
