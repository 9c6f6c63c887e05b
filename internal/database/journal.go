package database

import (
	"binance-futures-bot-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Journal appends trade events and daily summaries to the database.
// Writes are best-effort: a failed insert is logged and dropped so the
// trading loop never stalls on storage.
type Journal struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewJournal creates a journal over an open database.
func NewJournal(db *gorm.DB, logger *zap.Logger) *Journal {
	return &Journal{db: db, logger: logger.Named("journal")}
}

// Append records one trade event.
func (j *Journal) Append(ev models.TradeEvent) {
	if err := j.db.Create(&ev).Error; err != nil {
		j.logger.Warn("Failed to append trade event",
			zap.String("event", ev.Event), zap.Error(err))
	}
}

// SaveSummary records one daily summary row.
func (j *Journal) SaveSummary(s models.DailySummary) {
	if err := j.db.Create(&s).Error; err != nil {
		j.logger.Warn("Failed to save daily summary",
			zap.String("day", s.Day), zap.Error(err))
	}
}
