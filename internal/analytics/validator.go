package analytics

import (
	"strconv"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantora/trademetrics/internal/types"
	"github.com/quantora/trademetrics/pkg/errors"
)

// Timestamp layouts accepted on ingestion. The terminal exports
// "2025.01.08 08:08:15"; the other layouts are fallbacks.
var timestampLayouts = []string{
	"2006.01.02 15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

var requiredColumns = []string{
	types.ColumnOpenTime,
	types.ColumnCloseTime,
	types.ColumnSymbol,
	types.ColumnMagicNumber,
	types.ColumnType,
	types.ColumnVolume,
	types.ColumnOpenPrice,
	types.ColumnClosePrice,
	types.ColumnCommission,
	types.ColumnSwap,
	types.ColumnProfit,
	types.ColumnProfitPoints,
	types.ColumnDuration,
	types.ColumnOpenComment,
	types.ColumnCloseComment,
}

var keyReplacer = strings.NewReplacer("/", "", " ", "_", "-", "_", ".", "_")

// CanonicalColumn normalizes a raw payload key to its canonical column name.
// Matching is case-insensitive and treats spaces, underscores, dashes and
// slashes alike: "Open Time", "open_time" and "OPEN-TIME" are the same
// column, "S/L" becomes "sl".
func CanonicalColumn(raw string) string {
	key := keyReplacer.Replace(strings.TrimSpace(strings.ToLower(raw)))

	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}

	return strings.Trim(key, "_")
}

// NormalizePayload rewrites a raw payload with canonical column names.
// Later duplicate keys win, matching how the terminal emits headers.
func NormalizePayload(raw map[string]string) map[string]string {
	normalized := make(map[string]string, len(raw))
	for key, value := range raw {
		normalized[CanonicalColumn(key)] = value
	}

	return normalized
}

// ParseRecord validates and converts a raw key/value payload into a
// TradeRecord. It is a pure transform: the error lists every missing and
// every unparsable field, not just the first one found.
func ParseRecord(raw map[string]string) (types.TradeRecord, error) {
	payload := NormalizePayload(raw)

	var missing, invalid []string

	for _, column := range requiredColumns {
		if _, ok := payload[column]; !ok {
			missing = append(missing, column)
		}
	}

	record := types.TradeRecord{
		Symbol:       strings.TrimSpace(payload[types.ColumnSymbol]),
		OpenComment:  payload[types.ColumnOpenComment],
		CloseComment: payload[types.ColumnCloseComment],
	}

	markInvalid := func(column string) {
		if _, present := payload[column]; present {
			invalid = append(invalid, column)
		}
	}

	var ok bool

	if record.OpenTime, ok = parseTimestamp(payload[types.ColumnOpenTime]); !ok {
		markInvalid(types.ColumnOpenTime)
	}

	if record.CloseTime, ok = parseTimestamp(payload[types.ColumnCloseTime]); !ok {
		markInvalid(types.ColumnCloseTime)
	} else if ok && !record.OpenTime.IsZero() && record.CloseTime.Before(record.OpenTime) {
		invalid = append(invalid, types.ColumnCloseTime)
	}

	if record.MagicNumber, ok = parseInt(payload[types.ColumnMagicNumber]); !ok {
		markInvalid(types.ColumnMagicNumber)
	}

	if record.Side, ok = types.ParseSide(payload[types.ColumnType]); !ok {
		markInvalid(types.ColumnType)
	}

	if record.Volume, ok = parseFloat(payload[types.ColumnVolume]); !ok || record.Volume < 0 {
		markInvalid(types.ColumnVolume)
	}

	if record.OpenPrice, ok = parseFloat(payload[types.ColumnOpenPrice]); !ok {
		markInvalid(types.ColumnOpenPrice)
	}

	if record.ClosePrice, ok = parseFloat(payload[types.ColumnClosePrice]); !ok {
		markInvalid(types.ColumnClosePrice)
	}

	if record.Commission, ok = parseFloat(payload[types.ColumnCommission]); !ok {
		markInvalid(types.ColumnCommission)
	}

	if record.Swap, ok = parseFloat(payload[types.ColumnSwap]); !ok {
		markInvalid(types.ColumnSwap)
	}

	if record.Profit, ok = parseFloat(payload[types.ColumnProfit]); !ok {
		markInvalid(types.ColumnProfit)
	}

	if record.ProfitPoints, ok = parseFloat(payload[types.ColumnProfitPoints]); !ok {
		markInvalid(types.ColumnProfitPoints)
	}

	if record.Duration, ok = ParseTradeDuration(payload[types.ColumnDuration]); !ok {
		markInvalid(types.ColumnDuration)
	}

	if record.StopLoss, ok = parseOptionalFloat(payload, types.ColumnStopLoss); !ok {
		invalid = append(invalid, types.ColumnStopLoss)
	}

	if record.TakeProfit, ok = parseOptionalFloat(payload, types.ColumnTakeProfit); !ok {
		invalid = append(invalid, types.ColumnTakeProfit)
	}

	if record.FloatingDrawdown, ok = parseOptionalFloat(payload, types.ColumnFloatingDrawdown); !ok {
		invalid = append(invalid, types.ColumnFloatingDrawdown)
	}

	if record.FloatingDrawdownCurrency, ok = parseOptionalFloat(payload, types.ColumnFloatingDrawdownCurrency); !ok {
		invalid = append(invalid, types.ColumnFloatingDrawdownCurrency)
	}

	if reason, present := payload[types.ColumnCloseReason]; present {
		record.CloseReason = optional.Some(types.ParseCloseReason(reason))
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return types.TradeRecord{}, errors.NewValidationError(missing, invalid)
	}

	return record, nil
}

// ParseRecords validates a sequence of raw payloads into a Partition,
// preserving the input order. When magicNumber is non-zero, only records for
// that magic number are kept; the column set still reflects the full source
// schema. The first invalid row fails the whole batch.
func ParseRecords(rows []map[string]string, clientID string, magicNumber int64) (types.Partition, error) {
	partition := types.Partition{
		ClientID:    clientID,
		MagicNumber: magicNumber,
		Records:     make([]types.TradeRecord, 0, len(rows)),
		Columns:     types.NewColumnSet(),
	}

	for i, row := range rows {
		for key := range row {
			partition.Columns.Add(CanonicalColumn(key))
		}

		record, err := ParseRecord(row)
		if err != nil {
			return types.Partition{}, errors.Wrapf(errors.ErrCodeInvalidRecord, err, "row %d rejected", i)
		}

		if magicNumber != 0 && record.MagicNumber != magicNumber {
			continue
		}

		partition.Records = append(partition.Records, record)
	}

	return partition, nil
}

// ParseTradeDuration parses a trade duration that arrives either as plain
// seconds ("109", "109.5") or as colon text up to "D:HH:MM:SS" ("0:01:49").
// Negative durations are rejected.
func ParseTradeDuration(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}

		return time.Duration(seconds * float64(time.Second)), true
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 4 {
		return 0, false
	}

	// Right-to-left: seconds, minutes, hours, days.
	units := []time.Duration{time.Second, time.Minute, time.Hour, 24 * time.Hour}

	var total time.Duration

	for i := 0; i < len(parts); i++ {
		part := strings.TrimSpace(parts[len(parts)-1-i])

		value, err := strconv.Atoi(part)
		if err != nil || value < 0 {
			return 0, false
		}

		total += time.Duration(value) * units[i]
	}

	return total, true
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}

	return time.Time{}, false
}

func parseFloat(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)

	return value, err == nil
}

func parseInt(raw string) (int64, bool) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)

	return value, err == nil
}

// parseOptionalFloat reads an optional numeric column. Absent columns and
// empty/None placeholders yield None; a present but unparsable value is an
// error so bad data does not silently disappear.
func parseOptionalFloat(payload map[string]string, column string) (optional.Option[float64], bool) {
	raw, present := payload[column]
	if !present {
		return optional.None[float64](), true
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") || strings.EqualFold(raw, "null") {
		return optional.None[float64](), true
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return optional.None[float64](), false
	}

	return optional.Some(value), true
}
