package analytics

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantora/trademetrics/internal/types"
	"github.com/quantora/trademetrics/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ReportTestSuite struct {
	suite.Suite
}

func TestReportSuite(t *testing.T) {
	suite.Run(t, new(ReportTestSuite))
}

func scenarioPartition() types.Partition {
	return partitionOf(
		trade(10, types.SideBuy),
		trade(-5, types.SideSell),
		trade(-3, types.SideSell),
		trade(20, types.SideBuy),
	)
}

func (suite *ReportTestSuite) TestComputeScenario() {
	report, err := Compute(scenarioPartition())
	suite.Require().NoError(err)

	suite.Equal(4, report.Summary.TradeCount)
	suite.Equal(22.0, report.Summary.TotalProfit)

	suite.Equal(3.75, report.Profit.ProfitFactor)
	suite.Equal(30.0, report.Profit.NetProfit)
	suite.Equal(-8.0, report.Profit.NetLoss)
	suite.Equal(2, report.Profit.TradesWon.Count)
	suite.Equal(50.0, report.Profit.TradesWon.Percent)
	suite.Equal(5.5, report.Profit.ExpectedPayoff)

	suite.Equal(8.0, report.Drawdown.Max.Value)
	suite.Equal(36.36, report.Drawdown.Max.Percent)
	suite.Equal(5.0, report.Drawdown.Min)

	suite.Equal(-8.0, report.Streaks.WorstLosing.Sum)
	suite.Equal(2, report.Streaks.WorstLosing.Count)
	suite.Equal(20.0, report.Streaks.BestWinning.Sum)
	suite.Equal(30.0, report.Streaks.TotalWinning.Sum)
	suite.Equal(2, report.Streaks.TotalWinning.Count)
}

func (suite *ReportTestSuite) TestComputePerSideProfit() {
	report, err := Compute(scenarioPartition())
	suite.Require().NoError(err)

	// Buy subset: [10, 20]; sell subset: [-5, -3].
	suite.Equal(30.0, report.ProfitBuy.NetProfit)
	suite.Equal(0.0, report.ProfitBuy.ProfitFactor) // no losing buys
	suite.Equal(100.0, report.ProfitBuy.TradesWon.Percent)
	suite.Equal(-8.0, report.ProfitSell.NetLoss)
	suite.Equal(0.0, report.ProfitSell.TradesWon.Percent)
	suite.Equal(-4.0, report.ProfitSell.ExpectedPayoff)
}

func (suite *ReportTestSuite) TestSideCountsAreExhaustive() {
	report, err := Compute(scenarioPartition())
	suite.Require().NoError(err)

	quantity := report.Breakdown.Quantity
	suite.Equal(report.Summary.TradeCount, quantity.Buy.Count+quantity.Sell.Count)
	suite.Equal(50.0, quantity.Buy.Percent)
	suite.Equal(50.0, quantity.Sell.Percent)
}

func (suite *ReportTestSuite) TestProfitabilityAndShareBreakdown() {
	report, err := Compute(scenarioPartition())
	suite.Require().NoError(err)

	suite.Equal(2, report.Breakdown.Profitability.Buy.Count)
	suite.Equal(100.0, report.Breakdown.Profitability.Buy.Percent)
	suite.Equal(0, report.Breakdown.Profitability.Sell.Count)
	suite.Equal(0.0, report.Breakdown.Profitability.Sell.Percent)

	suite.Equal(30.0, report.Breakdown.ProfitShare.Buy.Value)
	suite.InDelta(136.36, report.Breakdown.ProfitShare.Buy.Percent, 0.01)
	suite.Equal(-8.0, report.Breakdown.ProfitShare.Sell.Value)
}

func (suite *ReportTestSuite) TestCloseReasonBreakdown() {
	p := scenarioPartition()

	for i, r := range []types.CloseReason{
		types.CloseReasonOrder,
		types.CloseReasonStopLoss,
		types.CloseReasonTakeProfit,
	} {
		p.Records[i].CloseReason = optional.Some(r)
	}

	report, err := Compute(p)
	suite.Require().NoError(err)

	// Fourth record carries no reason and falls back to the ORDER catch-all.
	suite.Equal(2, report.CloseReasons.Order.Count)
	suite.Equal(1, report.CloseReasons.StopLoss.Count)
	suite.Equal(1, report.CloseReasons.TakeProfit.Count)
	suite.Equal(50.0, report.CloseReasons.Order.Percent)
	suite.Equal(25.0, report.CloseReasons.StopLoss.Percent)
}

func (suite *ReportTestSuite) TestComputeSchemaError() {
	p := scenarioPartition()
	p.Columns = types.NewColumnSet(types.ColumnProfit, types.ColumnType)

	_, err := Compute(p)
	suite.Require().Error(err)
	suite.True(errors.IsSchemaError(err))
	suite.Equal(errors.ErrCodeMissingCloseReason, errors.GetCode(err))
}

func (suite *ReportTestSuite) TestComputeEmptyPartition() {
	report, err := Compute(partitionOf())
	suite.Require().NoError(err)

	suite.Equal(0, report.Summary.TradeCount)
	suite.Equal(0.0, report.Summary.TotalProfit)
	suite.Equal(0.0, report.Profit.ProfitFactor)
	suite.Equal(0.0, report.Profit.TradesWon.Percent)
	suite.Equal(0.0, report.Profit.ExpectedPayoff)
	suite.Equal(0.0, report.Drawdown.Max.Value)
	suite.Equal(0.0, report.Drawdown.Max.Percent)
	suite.Equal(0.0, report.Costs.Commission.Percent)

	suite.False(report.FloatingDrawdown.Current.Available)
	suite.False(report.FloatingDrawdownBuy.Max.Available)
	suite.False(report.FloatingDrawdownSell.Min.Available)
}

func (suite *ReportTestSuite) TestComputeZeroCommissionAndProfit() {
	first := trade(0, types.SideBuy)
	second := trade(0, types.SideSell)

	report, err := Compute(partitionOf(first, second))
	suite.Require().NoError(err)

	// No division error, just flat zeros.
	suite.Equal(0.0, report.Costs.Commission.Percent)
	suite.Equal(0.0, report.Costs.Swap.Percent)

	// Zero-profit trades count toward the total but are neither won nor lost.
	suite.Equal(2, report.Summary.TradeCount)
	suite.Equal(0, report.Profit.TradesWon.Count)
	suite.Equal(0.0, report.Profit.TradesWon.Percent)
}

func (suite *ReportTestSuite) TestComputeIdempotent() {
	p := scenarioPartition()

	first, err := Compute(p)
	suite.Require().NoError(err)

	second, err := Compute(p)
	suite.Require().NoError(err)

	suite.Equal(first, second)
}

func (suite *ReportTestSuite) TestComputeCostPercents() {
	first := trade(10, types.SideBuy)
	first.Commission = -1.5
	first.Swap = -0.25

	second := trade(10, types.SideSell)
	second.Commission = -0.5
	second.Swap = 0.75

	report, err := Compute(partitionOf(first, second))
	suite.Require().NoError(err)

	suite.Equal(-2.0, report.Costs.Commission.Value)
	suite.Equal(-10.0, report.Costs.Commission.Percent)
	suite.Equal(0.5, report.Costs.Swap.Value)
	suite.Equal(2.5, report.Costs.Swap.Percent)
}

func (suite *ReportTestSuite) TestComputeTimeMetrics() {
	first := trade(1, types.SideBuy)
	first.Duration = 90 * time.Minute

	second := trade(2, types.SideSell)
	second.Duration = 30 * time.Minute

	report, err := Compute(partitionOf(first, second))
	suite.Require().NoError(err)

	suite.Equal(types.OpenTime{Days: 0, Hours: 2, Minutes: 0}, report.Time.All.Total)
	suite.Equal(types.OpenTime{Days: 0, Hours: 1, Minutes: 0}, report.Time.All.Avg)
	suite.Equal(types.OpenTime{Days: 0, Hours: 1, Minutes: 30}, report.Time.All.Max)
	suite.Equal(types.OpenTime{Days: 0, Hours: 0, Minutes: 30}, report.Time.All.Min)
	suite.Equal(100.0, report.Time.All.Percent)
	suite.Equal(75.0, report.Time.Buy.Percent)
	suite.Equal(25.0, report.Time.Sell.Percent)
}
