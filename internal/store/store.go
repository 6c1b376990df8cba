package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// TradeRow is one executed or dry-run trade.
type TradeRow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Venue     string    `gorm:"index" json:"venue"`
	Symbol    string    `gorm:"index" json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Qty       float64   `json:"qty"`
	AmountKRW float64   `json:"amount_krw"`
	Fee       float64   `json:"fee"`
	PnL       float64   `json:"pnl"`
	OrderID   string    `json:"order_id"`
	Note      string    `json:"note"`
	DryRun    bool      `json:"dry_run"`
	CreatedAt time.Time `json:"created_at"`
}

// SignalRow is one analysis snapshot with its serialized indicator bundle.
type SignalRow struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Venue      string         `json:"venue"`
	Symbol     string         `gorm:"index" json:"symbol"`
	Signal     string         `json:"signal"`
	Score      float64        `json:"score"`
	Price      float64        `json:"price"`
	Indicators datatypes.JSON `json:"indicators"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ArbitrageRow is one premium check or execution outcome.
type ArbitrageRow struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	DomesticPrice float64   `json:"domestic_price"`
	ForeignPrice  float64   `json:"foreign_price"`
	FXRate        float64   `json:"fx_rate"`
	PremiumPct    float64   `json:"premium_pct"`
	NetProfitPct  float64   `json:"net_profit_pct"`
	Profitable    bool      `json:"profitable"`
	Direction     string    `json:"direction"`
	Status        string    `json:"status"`
	Note          string    `json:"note"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConfigRow is one key-value configuration snapshot, JSON-encoded.
type ConfigRow struct {
	Key       string         `gorm:"primaryKey" json:"key"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PnLSummary aggregates closed trades.
type PnLSummary struct {
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	WinRate   float64 `json:"win_rate"`
	TotalPnL  float64 `json:"total_pnl"`
	TotalFees float64 `json:"total_fees"`
}

// ErrConfigNotFound marks a missing config key.
var ErrConfigNotFound = errors.New("store: config key not found")

// Journal is the append-only trade/signal/arbitrage log backed by SQLite.
type Journal struct {
	db *gorm.DB
}

// Open creates or opens the journal database and migrates its tables.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory failed: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal database failed: %w", err)
	}
	if err := db.AutoMigrate(&TradeRow{}, &SignalRow{}, &ArbitrageRow{}, &ConfigRow{}); err != nil {
		return nil, fmt.Errorf("migrating journal tables failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (j *Journal) SaveTrade(ctx context.Context, row *TradeRow) error {
	return j.db.WithContext(ctx).Create(row).Error
}

// RecentTrades returns the newest trades first, up to limit.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]TradeRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []TradeRow
	err := j.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// SaveSignal journals one analysis snapshot. The indicators argument is
// JSON-serialized into the row.
func (j *Journal) SaveSignal(ctx context.Context, venue, symbol, signal string, score, price float64, indicators any) error {
	blob, err := json.Marshal(indicators)
	if err != nil {
		return fmt.Errorf("encoding indicators failed: %w", err)
	}
	row := SignalRow{
		Venue:      venue,
		Symbol:     symbol,
		Signal:     signal,
		Score:      score,
		Price:      price,
		Indicators: datatypes.JSON(blob),
	}
	return j.db.WithContext(ctx).Create(&row).Error
}

func (j *Journal) SaveArbitrage(ctx context.Context, row *ArbitrageRow) error {
	return j.db.WithContext(ctx).Create(row).Error
}

// SaveConfig upserts a JSON-encoded value under key.
func (j *Journal) SaveConfig(ctx context.Context, key string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding config %q failed: %w", key, err)
	}
	row := ConfigRow{Key: key, Value: datatypes.JSON(blob), UpdatedAt: time.Now()}
	return j.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

// LoadConfig decodes the stored value for key into out. A missing key
// returns ErrConfigNotFound and leaves out untouched.
func (j *Journal) LoadConfig(ctx context.Context, key string, out any) error {
	var row ConfigRow
	err := j.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConfigNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(row.Value, out); err != nil {
		return fmt.Errorf("decoding config %q failed: %w", key, err)
	}
	return nil
}

// PnL aggregates realized PnL over sell trades.
func (j *Journal) PnL(ctx context.Context) (PnLSummary, error) {
	var rows []TradeRow
	if err := j.db.WithContext(ctx).Where("side = ?", "sell").Find(&rows).Error; err != nil {
		return PnLSummary{}, err
	}
	var s PnLSummary
	for _, row := range rows {
		s.Trades++
		s.TotalPnL += row.PnL
		s.TotalFees += row.Fee
		if row.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	}
	return s, nil
}
