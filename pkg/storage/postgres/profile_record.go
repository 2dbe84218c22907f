package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfileRecord represents a finalized volume profile window stored in the
// database, one row per closed window.
type ProfileRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Symbol      string    `gorm:"type:text;not null;index:idx_profile_symbol;index:idx_symbol_window,unique"`
	WindowStart time.Time `gorm:"not null;index:idx_symbol_window,unique"`
	WindowEnd   time.Time `gorm:"not null;index:idx_symbol_window,unique"`

	TotalVolume    decimal.Decimal `gorm:"type:numeric;not null"`
	PointOfControl decimal.Decimal `gorm:"type:numeric;not null"`
	ValueAreaLow   decimal.Decimal `gorm:"type:numeric;not null"`
	ValueAreaHigh  decimal.Decimal `gorm:"type:numeric;not null"`

	TradeCount int64 `gorm:"not null"`

	// Bins holds the price histogram as a JSON array of
	// {price, buy_volume, sell_volume}.
	Bins []byte `gorm:"type:jsonb;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (ProfileRecord) TableName() string {
	return "volume_profile"
}
