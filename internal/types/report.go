package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Metric is a value with its percentage representation. How the pair is
// rendered (suffixes, display strings) belongs to the presentation layer.
type Metric struct {
	Value   float64 `yaml:"value" json:"value"`
	Percent float64 `yaml:"percent" json:"percent"`
}

// CountMetric is a trade count with its percentage of some total.
type CountMetric struct {
	Count   int     `yaml:"count" json:"count"`
	Percent float64 `yaml:"percent" json:"percent"`
}

// StreakMetric is the accumulated profit of a run of trades plus the number
// of trades in the run.
type StreakMetric struct {
	Sum   float64 `yaml:"sum" json:"sum"`
	Count int     `yaml:"count" json:"count"`
}

// FloatingDrawdownValue is one externally supplied unrealized drawdown
// reading in points and account currency. Available is false when the
// subset carried no readings; the zero values then mean "not available",
// not an actual zero reading.
type FloatingDrawdownValue struct {
	Available bool    `yaml:"available" json:"available"`
	Points    float64 `yaml:"points" json:"points"`
	Currency  float64 `yaml:"currency" json:"currency"`
}

// FloatingDrawdownMetrics reports the current (last), maximum and minimum
// floating drawdown readings of a subset.
type FloatingDrawdownMetrics struct {
	Current FloatingDrawdownValue `yaml:"current" json:"current"`
	Max     FloatingDrawdownValue `yaml:"max" json:"max"`
	Min     FloatingDrawdownValue `yaml:"min" json:"min"`
}

// OpenTime is an elapsed open duration as a days:hours:minutes triple.
// Seconds are truncated, not rounded.
type OpenTime struct {
	Days    int `yaml:"days" json:"days"`
	Hours   int `yaml:"hours" json:"hours"`
	Minutes int `yaml:"minutes" json:"minutes"`
}

// NewOpenTime truncates a duration into a days:hours:minutes triple.
func NewOpenTime(d time.Duration) OpenTime {
	if d < 0 {
		d = 0
	}

	totalMinutes := int(d.Minutes())

	return OpenTime{
		Days:    totalMinutes / (24 * 60),
		Hours:   (totalMinutes / 60) % 24,
		Minutes: totalMinutes % 60,
	}
}

// Summary holds the headline partition figures.
type Summary struct {
	TradeCount    int       `yaml:"trade_count" json:"trade_count"`
	MostVolume    float64   `yaml:"most_volume" json:"most_volume"`
	FirstOpenTime time.Time `yaml:"first_open_time" json:"first_open_time"`
	LastCloseTime time.Time `yaml:"last_close_time" json:"last_close_time"`
	TotalProfit   float64   `yaml:"total_profit" json:"total_profit"`
}

// ProfitMetrics are the set-based profitability figures of one subset.
type ProfitMetrics struct {
	ProfitFactor   float64     `yaml:"profit_factor" json:"profit_factor"`
	TradesWon      CountMetric `yaml:"trades_won" json:"trades_won"`
	ExpectedPayoff float64     `yaml:"expected_payoff" json:"expected_payoff"`
	NetProfit      float64     `yaml:"net_profit" json:"net_profit"`
	NetLoss        float64     `yaml:"net_loss" json:"net_loss"`
}

// SideDrawdown is the drawdown of one side's own equity curve, normalized
// against that side's own peak.
type SideDrawdown struct {
	Max Metric  `yaml:"max" json:"max"`
	Min float64 `yaml:"min" json:"min"`
}

// DrawdownMetrics are the equity-curve drawdown figures. Max carries the
// reconciled total; BuyShare and SellShare are the per-side decomposition
// with percentages derived proportionally from the total percentage.
type DrawdownMetrics struct {
	Max                  Metric       `yaml:"max" json:"max"`
	Min                  float64      `yaml:"min" json:"min"`
	BuyShare             Metric       `yaml:"buy_share" json:"buy_share"`
	SellShare            Metric       `yaml:"sell_share" json:"sell_share"`
	Buy                  SideDrawdown `yaml:"buy" json:"buy"`
	Sell                 SideDrawdown `yaml:"sell" json:"sell"`
	MaxTradeTime         OpenTime     `yaml:"max_trade_time" json:"max_trade_time"`
	UnderwaterTradeCount int          `yaml:"underwater_trade_count" json:"underwater_trade_count"`
	// BalanceOverMaxFloating is total profit over the maximum floating
	// drawdown reading; 0 when no readings exist.
	BalanceOverMaxFloating float64 `yaml:"balance_over_max_floating" json:"balance_over_max_floating"`
}

// StreakMetrics holds the streak figures of one subset. TotalWinning is not
// a consecutive run: it is the sum and count of every winning trade in the
// subset, kept for compatibility with earlier reports.
type StreakMetrics struct {
	WorstLosing  StreakMetric `yaml:"worst_losing" json:"worst_losing"`
	BestWinning  StreakMetric `yaml:"best_winning" json:"best_winning"`
	TotalWinning StreakMetric `yaml:"total_winning" json:"total_winning"`
}

// SideSplit is a per-side count breakdown.
type SideSplit struct {
	Buy  CountMetric `yaml:"buy" json:"buy"`
	Sell CountMetric `yaml:"sell" json:"sell"`
}

// AmountSplit is a per-side amount breakdown.
type AmountSplit struct {
	Buy  Metric `yaml:"buy" json:"buy"`
	Sell Metric `yaml:"sell" json:"sell"`
}

// SideBreakdown groups the per-side distribution figures.
type SideBreakdown struct {
	// Quantity: trade count per side, percent of all trades.
	Quantity SideSplit `yaml:"quantity" json:"quantity"`
	// Profitability: winning trade count per side, percent of all wins.
	Profitability SideSplit `yaml:"profitability" json:"profitability"`
	// ProfitShare: profit sum per side, percent of total profit.
	ProfitShare AmountSplit `yaml:"profit_share" json:"profit_share"`
}

// CloseReasonMetrics is the closure-reason breakdown.
type CloseReasonMetrics struct {
	Order      CountMetric `yaml:"order" json:"order"`
	StopLoss   CountMetric `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit CountMetric `yaml:"take_profit" json:"take_profit"`
}

// ScopeTime holds the open-duration figures of one subset. Percent is the
// subset's share of the whole partition's total open time.
type ScopeTime struct {
	Total   OpenTime `yaml:"total" json:"total"`
	Avg     OpenTime `yaml:"avg" json:"avg"`
	Max     OpenTime `yaml:"max" json:"max"`
	Min     OpenTime `yaml:"min" json:"min"`
	Percent float64  `yaml:"percent" json:"percent"`
}

// TimeMetrics groups open-duration figures for the whole partition and each side.
type TimeMetrics struct {
	All  ScopeTime `yaml:"all" json:"all"`
	Buy  ScopeTime `yaml:"buy" json:"buy"`
	Sell ScopeTime `yaml:"sell" json:"sell"`
}

// CostMetrics are commission and swap sums with their percent of total profit.
type CostMetrics struct {
	Commission Metric `yaml:"commission" json:"commission"`
	Swap       Metric `yaml:"swap" json:"swap"`
}

// MetricsReport is the full metric catalogue for one partition. It is
// assembled fresh on every query, rounded to two decimal places, and never
// persisted by the engine itself.
// Reports carry no generation timestamp: computing a report twice from the
// same snapshot must yield identical results.
type MetricsReport struct {
	ClientID    string `yaml:"client_id" json:"client_id"`
	MagicNumber int64  `yaml:"magic_number" json:"magic_number"`

	Summary    Summary       `yaml:"summary" json:"summary"`
	Profit     ProfitMetrics `yaml:"profit" json:"profit"`
	ProfitBuy  ProfitMetrics `yaml:"profit_buy" json:"profit_buy"`
	ProfitSell ProfitMetrics `yaml:"profit_sell" json:"profit_sell"`

	Drawdown DrawdownMetrics `yaml:"drawdown" json:"drawdown"`

	FloatingDrawdown     FloatingDrawdownMetrics `yaml:"floating_drawdown" json:"floating_drawdown"`
	FloatingDrawdownBuy  FloatingDrawdownMetrics `yaml:"floating_drawdown_buy" json:"floating_drawdown_buy"`
	FloatingDrawdownSell FloatingDrawdownMetrics `yaml:"floating_drawdown_sell" json:"floating_drawdown_sell"`

	Streaks     StreakMetrics `yaml:"streaks" json:"streaks"`
	StreaksBuy  StreakMetrics `yaml:"streaks_buy" json:"streaks_buy"`
	StreaksSell StreakMetrics `yaml:"streaks_sell" json:"streaks_sell"`

	Breakdown    SideBreakdown      `yaml:"breakdown" json:"breakdown"`
	CloseReasons CloseReasonMetrics `yaml:"close_reasons" json:"close_reasons"`
	Time         TimeMetrics        `yaml:"time" json:"time"`
	Costs        CostMetrics        `yaml:"costs" json:"costs"`
}

// WriteMetricsReport writes a metrics report to a YAML file.
func WriteMetricsReport(path string, report MetricsReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics report to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics report to file: %w", err)
	}

	return nil
}

// ReadMetricsReport reads a metrics report from a YAML file.
func ReadMetricsReport(path string) (MetricsReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MetricsReport{}, fmt.Errorf("failed to read metrics report file: %w", err)
	}

	var report MetricsReport
	if err := yaml.Unmarshal(data, &report); err != nil {
		return MetricsReport{}, fmt.Errorf("failed to unmarshal metrics report: %w", err)
	}

	return report, nil
}
