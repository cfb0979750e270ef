package types

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/quantora/trademetrics/pkg/errors"
)

type Side string

type CloseReason string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	// CloseReasonOrder is the catch-all for any close that was not a
	// stop loss or take profit trigger.
	CloseReasonOrder      CloseReason = "ORDER"
	CloseReasonStopLoss   CloseReason = "STOP_LOSS"
	CloseReasonTakeProfit CloseReason = "TAKE_PROFIT"
)

// Canonical column names. Raw payload keys are normalized to these before
// validation, so downstream components never do name-keyed lookups.
const (
	ColumnOpenTime                 = "open_time"
	ColumnCloseTime                = "close_time"
	ColumnSymbol                   = "symbol"
	ColumnMagicNumber              = "magic_number"
	ColumnType                     = "type"
	ColumnVolume                   = "volume"
	ColumnOpenPrice                = "open_price"
	ColumnClosePrice               = "close_price"
	ColumnStopLoss                 = "sl"
	ColumnTakeProfit               = "tp"
	ColumnCommission               = "commission"
	ColumnSwap                     = "swap"
	ColumnProfit                   = "profit"
	ColumnProfitPoints             = "profit_points"
	ColumnDuration                 = "duration"
	ColumnOpenComment              = "open_comment"
	ColumnCloseComment             = "close_comment"
	ColumnCloseReason              = "close_reason"
	ColumnFloatingDrawdown         = "floating_drawdown"
	ColumnFloatingDrawdownCurrency = "floating_drawdown_currency"
)

// TradeRecord is one closed trade. Records are created by the ingestion side
// when a trade closes and are never mutated afterwards.
type TradeRecord struct {
	OpenTime    time.Time `yaml:"open_time" json:"open_time" validate:"required"`
	CloseTime   time.Time `yaml:"close_time" json:"close_time" validate:"required,gtefield=OpenTime"`
	Symbol      string    `yaml:"symbol" json:"symbol" validate:"required"`
	MagicNumber int64     `yaml:"magic_number" json:"magic_number"`
	Side        Side      `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Volume      float64   `yaml:"volume" json:"volume" validate:"gte=0"`
	OpenPrice   float64   `yaml:"open_price" json:"open_price"`
	ClosePrice  float64   `yaml:"close_price" json:"close_price"`
	// StopLoss is the stop loss price. Can be nil if not set.
	StopLoss optional.Option[float64] `yaml:"sl" json:"sl"`
	// TakeProfit is the take profit price. Can be nil if not set.
	TakeProfit   optional.Option[float64] `yaml:"tp" json:"tp"`
	Commission   float64                  `yaml:"commission" json:"commission"`
	Swap         float64                  `yaml:"swap" json:"swap"`
	Profit       float64                  `yaml:"profit" json:"profit"`
	ProfitPoints float64                  `yaml:"profit_points" json:"profit_points"`
	Duration     time.Duration            `yaml:"duration" json:"duration" validate:"gte=0"`
	OpenComment  string                   `yaml:"open_comment" json:"open_comment"`
	CloseComment string                   `yaml:"close_comment" json:"close_comment"`
	// CloseReason is only present when the source schema carries it.
	CloseReason optional.Option[CloseReason] `yaml:"close_reason" json:"close_reason"`
	// FloatingDrawdown readings are supplied by the terminal, never derived here.
	FloatingDrawdown         optional.Option[float64] `yaml:"floating_drawdown" json:"floating_drawdown"`
	FloatingDrawdownCurrency optional.Option[float64] `yaml:"floating_drawdown_currency" json:"floating_drawdown_currency"`
}

// Validate validates the TradeRecord struct.
func (r *TradeRecord) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRecord, "invalid trade record", err)
	}

	return nil
}

// ParseSide parses a side value case-insensitively.
func ParseSide(raw string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY":
		return SideBuy, true
	case "SELL":
		return SideSell, true
	default:
		return "", false
	}
}

// ParseCloseReason normalizes a close reason value. Anything that is not a
// stop loss or take profit trigger collapses into CloseReasonOrder.
func ParseCloseReason(raw string) CloseReason {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "/", "_", "-", "_").Replace(normalized)

	switch normalized {
	case "STOP_LOSS", "STOPLOSS", "SL":
		return CloseReasonStopLoss
	case "TAKE_PROFIT", "TAKEPROFIT", "TP":
		return CloseReasonTakeProfit
	default:
		return CloseReasonOrder
	}
}

// ColumnSet records which canonical columns were present in the source
// payload. It drives schema errors for metrics that need a column the
// source never carried.
type ColumnSet map[string]struct{}

// NewColumnSet creates a ColumnSet from the given canonical column names.
func NewColumnSet(names ...string) ColumnSet {
	set := make(ColumnSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}

	return set
}

// Add adds a canonical column name to the set.
func (c ColumnSet) Add(name string) {
	c[name] = struct{}{}
}

// Has reports whether the canonical column name is present.
func (c ColumnSet) Has(name string) bool {
	_, ok := c[name]

	return ok
}

// Names returns the column names in sorted order.
func (c ColumnSet) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Partition is the ordered set of trades for one (clientId, magicNumber)
// pair. The record order is the caller-defined insertion order and must be
// preserved end-to-end: peak tracking, streaks and the "current" floating
// drawdown reading are order-sensitive. The engine never re-sorts records.
type Partition struct {
	ClientID    string        `yaml:"client_id" json:"client_id"`
	MagicNumber int64         `yaml:"magic_number" json:"magic_number"`
	Records     []TradeRecord `yaml:"records" json:"records"`
	Columns     ColumnSet     `yaml:"columns" json:"columns"`
}

// HasColumn reports whether the partition's source schema carried the column.
func (p *Partition) HasColumn(name string) bool {
	return p.Columns.Has(name)
}

// Filter returns the records matching the given side, preserving order.
func (p *Partition) Filter(side Side) []TradeRecord {
	filtered := make([]TradeRecord, 0, len(p.Records))

	for _, record := range p.Records {
		if record.Side == side {
			filtered = append(filtered, record)
		}
	}

	return filtered
}
