package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantora/trademetrics/internal/logger"
	"github.com/quantora/trademetrics/internal/types"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (suite *StoreTestSuite) SetupTest() {
	log, err := logger.NewLogger()
	suite.Require().NoError(err)

	store, err := Open(suite.T().TempDir(), log)
	suite.Require().NoError(err)

	suite.store = store
	suite.ctx = context.Background()
}

func (suite *StoreTestSuite) TearDownTest() {
	suite.Require().NoError(suite.store.Close())
}

func (suite *StoreTestSuite) record(profit float64, side types.Side, magic int64) types.TradeRecord {
	open := time.Date(2025, 1, 8, 8, 0, 0, 0, time.UTC)

	return types.TradeRecord{
		OpenTime:    open,
		CloseTime:   open.Add(time.Hour),
		Symbol:      "BTCUSD.",
		MagicNumber: magic,
		Side:        side,
		Volume:      0.01,
		OpenPrice:   95000.5,
		ClosePrice:  95010.5,
		Profit:      profit,
		Duration:    time.Hour,
	}
}

func (suite *StoreTestSuite) TestAppendAndLoadPartition() {
	first := suite.record(10, types.SideBuy, 11085)
	first.StopLoss = optional.Some(94000.0)
	first.CloseReason = optional.Some(types.CloseReasonTakeProfit)

	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", first))
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(-5, types.SideSell, 11085)))
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(3, types.SideBuy, 999)))

	p, err := suite.store.LoadPartition(suite.ctx, "client-1", 11085)
	suite.Require().NoError(err)

	suite.Equal("client-1", p.ClientID)
	suite.Equal(int64(11085), p.MagicNumber)
	suite.Require().Len(p.Records, 2)

	suite.Equal(10.0, p.Records[0].Profit)
	suite.Equal(-5.0, p.Records[1].Profit)
	suite.Equal(types.SideBuy, p.Records[0].Side)
	suite.True(first.OpenTime.Equal(p.Records[0].OpenTime))
	suite.Equal(time.Hour, p.Records[0].Duration)

	suite.True(p.Records[0].StopLoss.IsSome())
	suite.Equal(94000.0, p.Records[0].StopLoss.Unwrap())
	suite.True(p.Records[1].StopLoss.IsNone())

	suite.Equal(types.CloseReasonTakeProfit, p.Records[0].CloseReason.Unwrap())
	suite.True(p.Records[1].CloseReason.IsNone())

	suite.True(p.HasColumn(types.ColumnCloseReason))
	suite.True(p.HasColumn(types.ColumnStopLoss))
	suite.False(p.HasColumn(types.ColumnTakeProfit))
}

func (suite *StoreTestSuite) TestAppendAfterMaterializationStaysConsistent() {
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(10, types.SideBuy, 11085)))

	// Materialize the filtered table, then keep appending.
	p, err := suite.store.LoadPartition(suite.ctx, "client-1", 11085)
	suite.Require().NoError(err)
	suite.Require().Len(p.Records, 1)

	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(-5, types.SideSell, 11085)))
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(7, types.SideBuy, 999)))

	p, err = suite.store.LoadPartition(suite.ctx, "client-1", 11085)
	suite.Require().NoError(err)
	suite.Require().Len(p.Records, 2)
	suite.Equal(10.0, p.Records[0].Profit)
	suite.Equal(-5.0, p.Records[1].Profit)
}

func (suite *StoreTestSuite) TestReplaceDropsStaleFilteredTables() {
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(10, types.SideBuy, 11085)))

	_, err := suite.store.LoadPartition(suite.ctx, "client-1", 11085)
	suite.Require().NoError(err)

	records := []types.TradeRecord{
		suite.record(1, types.SideBuy, 11085),
		suite.record(2, types.SideSell, 11085),
	}
	columns := RecordColumns(records[0])

	count, err := suite.store.Replace(suite.ctx, "client-1", records, columns)
	suite.Require().NoError(err)
	suite.Equal(2, count)

	p, err := suite.store.LoadPartition(suite.ctx, "client-1", 11085)
	suite.Require().NoError(err)
	suite.Require().Len(p.Records, 2)
	suite.Equal(1.0, p.Records[0].Profit)
	suite.Equal(2.0, p.Records[1].Profit)
}

func (suite *StoreTestSuite) TestExistsAndCountRows() {
	exists, err := suite.store.Exists(suite.ctx, "client-1", 11085)
	suite.Require().NoError(err)
	suite.False(exists)

	count, err := suite.store.CountRows(suite.ctx, "client-1")
	suite.Require().NoError(err)
	suite.Equal(0, count)

	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(10, types.SideBuy, 11085)))

	exists, err = suite.store.Exists(suite.ctx, "client-1", 11085)
	suite.Require().NoError(err)
	suite.True(exists)

	exists, err = suite.store.Exists(suite.ctx, "client-1", 999)
	suite.Require().NoError(err)
	suite.False(exists)

	count, err = suite.store.CountRows(suite.ctx, "client-1")
	suite.Require().NoError(err)
	suite.Equal(1, count)
}

func (suite *StoreTestSuite) TestListClientsAndPartitions() {
	clients, err := suite.store.ListClients(suite.ctx)
	suite.Require().NoError(err)
	suite.Empty(clients)

	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(1, types.SideBuy, 11085)))
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(2, types.SideBuy, 11085)))
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(3, types.SideSell, 999)))
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-2", suite.record(4, types.SideBuy, 42)))

	clients, err = suite.store.ListClients(suite.ctx)
	suite.Require().NoError(err)
	suite.ElementsMatch([]string{"client-1", "client-2"}, clients)

	partitions, err := suite.store.ListPartitions(suite.ctx, "client-1")
	suite.Require().NoError(err)
	suite.Equal([]PartitionInfo{
		{MagicNumber: 999, Rows: 1},
		{MagicNumber: 11085, Rows: 2},
	}, partitions)
}

func (suite *StoreTestSuite) TestLoadPartitionEmpty() {
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(1, types.SideBuy, 11085)))

	p, err := suite.store.LoadPartition(suite.ctx, "client-1", 424242)
	suite.Require().NoError(err)
	suite.Empty(p.Records)
}

func (suite *StoreTestSuite) TestDatabaseFileLayout() {
	suite.Require().NoError(suite.store.Append(suite.ctx, "client-1", suite.record(1, types.SideBuy, 11085)))

	path := filepath.Join(suite.store.dataDir, "client-1", databaseFilename)

	_, err := os.Stat(path)
	suite.NoError(err)
}

func (suite *StoreTestSuite) TestRecordColumns() {
	record := suite.record(1, types.SideBuy, 11085)
	columns := RecordColumns(record)

	suite.True(columns.Has(types.ColumnProfit))
	suite.True(columns.Has(types.ColumnDuration))
	suite.False(columns.Has(types.ColumnCloseReason))

	record.CloseReason = optional.Some(types.CloseReasonOrder)
	record.FloatingDrawdown = optional.Some(2.5)

	columns = RecordColumns(record)
	suite.True(columns.Has(types.ColumnCloseReason))
	suite.True(columns.Has(types.ColumnFloatingDrawdown))
	suite.False(columns.Has(types.ColumnFloatingDrawdownCurrency))
}
