package repository

import (
	"context"
	"sync"

	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// HistoryRepo persists the trail of withdrawal flows so past outcomes
// (tx hashes, failure reasons) survive restarts.
type HistoryRepo interface {
	Upsert(ctx context.Context, record *model.WithdrawalRecord) error
	ListByWallet(ctx context.Context, wallet string, limit int) ([]model.WithdrawalRecord, error)
}

type PostgresHistoryRepo struct {
	db *gorm.DB
}

func NewPostgresHistoryRepo(cfg *config.Config) (*PostgresHistoryRepo, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.WithdrawalRecord{}); err != nil {
		return nil, err
	}
	return &PostgresHistoryRepo{db: db}, nil
}

func (r *PostgresHistoryRepo) Upsert(ctx context.Context, record *model.WithdrawalRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *PostgresHistoryRepo) ListByWallet(ctx context.Context, wallet string, limit int) ([]model.WithdrawalRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var records []model.WithdrawalRecord
	err := r.db.WithContext(ctx).
		Where("wallet = ?", wallet).
		Order("updated_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// MemoryHistoryRepo keeps flow history in-process when no database is
// configured.
type MemoryHistoryRepo struct {
	mu      sync.Mutex
	records map[string]model.WithdrawalRecord
	order   []string
}

func NewMemoryHistoryRepo() *MemoryHistoryRepo {
	return &MemoryHistoryRepo{records: make(map[string]model.WithdrawalRecord)}
}

func (r *MemoryHistoryRepo) Upsert(_ context.Context, record *model.WithdrawalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.FlowID]; !ok {
		r.order = append(r.order, record.FlowID)
	}
	r.records[record.FlowID] = *record
	return nil
}

func (r *MemoryHistoryRepo) ListByWallet(_ context.Context, wallet string, limit int) ([]model.WithdrawalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.WithdrawalRecord, 0)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		rec := r.records[r.order[i]]
		if rec.Wallet == wallet {
			out = append(out, rec)
		}
	}
	return out, nil
}
