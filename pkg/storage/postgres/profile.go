package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vpcollector/internal/okx/profile"

	"gorm.io/gorm/clause"
)

// InsertProfile stores one finalized window, silently skipping duplicates of
// the same (symbol, window) on retries.
func (p *PostgresClient) InsertProfile(ctx context.Context, record *ProfileRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "window_start"},
			{Name: "window_end"},
		},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return fmt.Errorf(
			"duplicate profile skipped: symbol=%s window_start=%s",
			record.Symbol,
			record.WindowStart.Format(time.RFC3339),
		)
	}

	return nil
}

func (p *PostgresClient) GetProfile(ctx context.Context, symbol string, windowStart time.Time) (*ProfileRecord, error) {
	var record ProfileRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ? AND window_start = ?", symbol, windowStart).
		First(&record).Error

	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (p *PostgresClient) GetProfilesBySymbol(ctx context.Context, symbol string, limit int) ([]ProfileRecord, error) {
	var records []ProfileRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("window_start DESC").
		Limit(limit).
		Find(&records).Error

	if err != nil {
		return nil, err
	}
	return records, nil
}

func (p *PostgresClient) DeleteOldProfiles(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("window_end < ?", before).
		Delete(&ProfileRecord{}).Error
}

// ToProfileRecord converts a finalized snapshot into a ProfileRecord for DB insertion.
func ToProfileRecord(snap *profile.Snapshot) (*ProfileRecord, error) {
	bins, err := json.Marshal(snap.Bins)
	if err != nil {
		return nil, fmt.Errorf("marshal bins: %w", err)
	}

	return &ProfileRecord{
		Symbol:         string(snap.Symbol),
		WindowStart:    snap.WindowStart,
		WindowEnd:      snap.WindowEnd,
		TotalVolume:    snap.TotalVolume,
		PointOfControl: snap.PointOfControl,
		ValueAreaLow:   snap.ValueAreaLow,
		ValueAreaHigh:  snap.ValueAreaHigh,
		TradeCount:     snap.TradeCount,
		Bins:           bins,
	}, nil
}
