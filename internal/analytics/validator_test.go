package analytics

import (
	"testing"
	"time"

	"github.com/quantora/trademetrics/internal/types"
	"github.com/quantora/trademetrics/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ValidatorTestSuite struct {
	suite.Suite
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorTestSuite))
}

// validPayload mirrors one row of a terminal CSV export.
func validPayload() map[string]string {
	return map[string]string{
		"Open Time":     "2025.01.08 08:08:15",
		"Symbol":        "BTCUSD.",
		"Magic Number":  "11085",
		"Type":          "buy",
		"Volume":        "0.01",
		"Open Price":    "96501.4",
		"S/L":           "",
		"T/P":           "",
		"Close Price":   "96491.3",
		"Close Time":    "2025.01.08 08:10:04",
		"Commission":    "-0.78",
		"Swap":          "0",
		"Profit":        "-0.1",
		"Profit Points": "-1010",
		"Duration":      "0:01:49",
		"Open Comment":  "Break EA 651",
		"Close Comment": "",
	}
}

func (suite *ValidatorTestSuite) TestCanonicalColumn() {
	cases := map[string]string{
		"Open Time":    "open_time",
		"open_time":    "open_time",
		"OPEN-TIME":    "open_time",
		"S/L":          "sl",
		"T/P":          "tp",
		"Magic Number": "magic_number",
		" Close  Time": "close_time",
		"Close Reason": "close_reason",
	}

	for raw, want := range cases {
		suite.Equal(want, CanonicalColumn(raw), "raw key %q", raw)
	}
}

func (suite *ValidatorTestSuite) TestParseRecordValid() {
	record, err := ParseRecord(validPayload())
	suite.Require().NoError(err)

	suite.Equal("BTCUSD.", record.Symbol)
	suite.Equal(int64(11085), record.MagicNumber)
	suite.Equal(types.SideBuy, record.Side)
	suite.Equal(0.01, record.Volume)
	suite.Equal(-0.1, record.Profit)
	suite.Equal(time.Minute+49*time.Second, record.Duration)
	suite.Equal("Break EA 651", record.OpenComment)
	suite.True(record.StopLoss.IsNone())
	suite.True(record.TakeProfit.IsNone())
	suite.True(record.CloseReason.IsNone())
	suite.Equal(time.Date(2025, 1, 8, 8, 8, 15, 0, time.UTC), record.OpenTime)
}

func (suite *ValidatorTestSuite) TestParseRecordCloseReason() {
	payload := validPayload()
	payload["Close Reason"] = "take profit"

	record, err := ParseRecord(payload)
	suite.Require().NoError(err)
	suite.Equal(types.CloseReasonTakeProfit, record.CloseReason.Unwrap())
}

func (suite *ValidatorTestSuite) TestParseRecordOptionalFloats() {
	payload := validPayload()
	payload["S/L"] = "96000.0"
	payload["Floating Drawdown"] = "12.5"
	payload["Floating Drawdown Currency"] = "1.25"

	record, err := ParseRecord(payload)
	suite.Require().NoError(err)
	suite.Equal(96000.0, record.StopLoss.Unwrap())
	suite.Equal(12.5, record.FloatingDrawdown.Unwrap())
	suite.Equal(1.25, record.FloatingDrawdownCurrency.Unwrap())
}

func (suite *ValidatorTestSuite) TestParseRecordReportsAllMissingFields() {
	payload := validPayload()
	delete(payload, "Profit")
	delete(payload, "Duration")

	_, err := ParseRecord(payload)
	suite.Require().Error(err)

	var validationErr *errors.ValidationError
	suite.Require().True(errors.As(err, &validationErr))
	suite.ElementsMatch([]string{"profit", "duration"}, validationErr.MissingFields)
	suite.Empty(validationErr.InvalidFields)
}

func (suite *ValidatorTestSuite) TestParseRecordReportsAllInvalidFields() {
	payload := validPayload()
	payload["Volume"] = "lots"
	payload["Duration"] = "-5"
	payload["Type"] = "hold"

	_, err := ParseRecord(payload)
	suite.Require().Error(err)

	var validationErr *errors.ValidationError
	suite.Require().True(errors.As(err, &validationErr))
	suite.ElementsMatch([]string{"volume", "duration", "type"}, validationErr.InvalidFields)
}

func (suite *ValidatorTestSuite) TestParseRecordCloseBeforeOpen() {
	payload := validPayload()
	payload["Close Time"] = "2025.01.08 08:00:00"

	_, err := ParseRecord(payload)
	suite.Require().Error(err)

	var validationErr *errors.ValidationError
	suite.Require().True(errors.As(err, &validationErr))
	suite.Contains(validationErr.InvalidFields, "close_time")
}

func (suite *ValidatorTestSuite) TestParseTradeDuration() {
	cases := []struct {
		raw  string
		want time.Duration
		ok   bool
	}{
		{"109", 109 * time.Second, true},
		{"109.5", 109*time.Second + 500*time.Millisecond, true},
		{"0:01:49", time.Minute + 49*time.Second, true},
		{"01:49", time.Minute + 49*time.Second, true},
		{"2:03:04:05", 2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second, true},
		{"-5", 0, false},
		{"1:-2:03", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"1:2:3:4:5", 0, false},
	}

	for _, tc := range cases {
		got, ok := ParseTradeDuration(tc.raw)
		suite.Equal(tc.ok, ok, "raw %q", tc.raw)

		if tc.ok {
			suite.Equal(tc.want, got, "raw %q", tc.raw)
		}
	}
}

func (suite *ValidatorTestSuite) TestParseRecordsPreservesOrderAndFilters() {
	rows := []map[string]string{}

	for _, p := range []struct {
		magic  string
		profit string
	}{
		{"11085", "10"},
		{"22000", "99"},
		{"11085", "-5"},
	} {
		row := validPayload()
		row["Magic Number"] = p.magic
		row["Profit"] = p.profit
		rows = append(rows, row)
	}

	partition, err := ParseRecords(rows, "client-1", 11085)
	suite.Require().NoError(err)

	suite.Equal("client-1", partition.ClientID)
	suite.Equal(int64(11085), partition.MagicNumber)
	suite.Require().Len(partition.Records, 2)
	suite.Equal(10.0, partition.Records[0].Profit)
	suite.Equal(-5.0, partition.Records[1].Profit)
	suite.True(partition.Columns.Has(types.ColumnProfit))
	suite.False(partition.Columns.Has(types.ColumnCloseReason))
}

func (suite *ValidatorTestSuite) TestParseRecordsRejectsBadRow() {
	rows := []map[string]string{validPayload(), validPayload()}
	rows[1]["Profit"] = "not-a-number"

	_, err := ParseRecords(rows, "client-1", 0)
	suite.Require().Error(err)
	suite.True(errors.IsValidationError(err))
	suite.Contains(err.Error(), "row 1")
}
