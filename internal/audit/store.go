package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/structflow/extraction"
	"github.com/BaSui01/structflow/internal/database"
	"github.com/BaSui01/structflow/structured"
)

// AttemptRecord 是一次提取尝试的持久化形式
type AttemptRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"size:36;index"`
	Attempt    int
	Provider   string `gorm:"size:64"`
	Outcome    string `gorm:"size:32;index"`
	Errors     string `gorm:"type:text"`
	Payload    string `gorm:"type:text"`
	DurationMS int64
	CreatedAt  time.Time
}

// TableName 表名
func (AttemptRecord) TableName() string { return "extraction_attempts" }

// ParseErrors 解码 Errors 列
func (r AttemptRecord) ParseErrors() ([]structured.ParseError, error) {
	if r.Errors == "" {
		return nil, nil
	}
	var errs []structured.ParseError
	if err := json.Unmarshal([]byte(r.Errors), &errs); err != nil {
		return nil, fmt.Errorf("decode attempt errors: %w", err)
	}
	return errs, nil
}

// Store 把尝试记录写入数据库，实现 extraction.AttemptRecorder
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

var _ extraction.AttemptRecorder = (*Store)(nil)

// NewStore 创建审计存储并迁移表结构
func NewStore(pool *database.PoolManager, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&AttemptRecord{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	return &Store{pool: pool, logger: logger.With(zap.String("component", "audit"))}, nil
}

// RecordAttempt 写入一条尝试记录
func (s *Store) RecordAttempt(ctx context.Context, rec extraction.AttemptRecord) error {
	row := AttemptRecord{
		RunID:      rec.RunID,
		Attempt:    rec.Attempt,
		Provider:   rec.Provider,
		Outcome:    string(rec.Outcome),
		Payload:    rec.Payload,
		DurationMS: rec.Duration.Milliseconds(),
	}
	if len(rec.Errors) > 0 {
		raw, err := json.Marshal(rec.Errors)
		if err != nil {
			return fmt.Errorf("encode attempt errors: %w", err)
		}
		row.Errors = string(raw)
	}

	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	s.logger.Debug("attempt recorded",
		zap.String("run_id", rec.RunID),
		zap.Int("attempt", rec.Attempt),
		zap.String("outcome", row.Outcome),
	)
	return nil
}

// ListRun 按尝试顺序返回一次运行的全部记录
func (s *Store) ListRun(ctx context.Context, runID string) ([]AttemptRecord, error) {
	var rows []AttemptRecord
	err := s.pool.DB().WithContext(ctx).
		Where("run_id = ?", runID).
		Order("attempt ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list run %s: %w", runID, err)
	}
	return rows, nil
}

// Close 关闭底层连接池
func (s *Store) Close() error {
	return s.pool.Close()
}
