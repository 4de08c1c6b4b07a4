package datastore

import (
	"context"
	"time"

	"pulsepay/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableRelayLog(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.RelayLog)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.RelayLog)(nil)).Index("index_relay_log_user").IfNotExists().Column("user_id").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.RelayLog)(nil)).Index("index_relay_log_status").IfNotExists().Column("status").Exec(ctx)
	if err != nil {
		return err
	}
	return nil
}

func InsertRelayLog(ctx context.Context, db *bun.DB, log *models.RelayLog) (*models.RelayLog, error) {
	now := time.Now()
	log.CreatedAt = now
	log.UpdatedAt = now
	_, err := db.NewInsert().Model(log).Exec(ctx)
	if err != nil {
		return nil, err
	}
	return log, nil
}

func UpdateRelayLogStatus(ctx context.Context, db *bun.DB, id int64, status string, detail string) error {
	_, err := db.NewUpdate().Model((*models.RelayLog)(nil)).
		Set("status = ?", status).
		Set("detail = ?", detail).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func ListRelayLogsByUser(ctx context.Context, db *bun.DB, userID int64, limit int) ([]models.RelayLog, error) {
	var logs []models.RelayLog
	err := db.NewSelect().Model(&logs).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ListRelayLogsByStatus fetches rows needing an outcome recheck, oldest first
// so a backlog drains in order.
func ListRelayLogsByStatus(ctx context.Context, db *bun.DB, status string, limit int) ([]models.RelayLog, error) {
	var logs []models.RelayLog
	err := db.NewSelect().Model(&logs).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
