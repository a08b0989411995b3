package repository

import (
	"context"
	"time"

	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"github.com/smallbiznis/creditledger/pkg/db/option"
	"github.com/smallbiznis/creditledger/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *usagedomain.UsageRecord) error {
	return repository.ProvideStore[usagedomain.UsageRecord](db).Create(ctx, record)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID string, since time.Time, limit, offset int) ([]usagedomain.UsageRecord, error) {
	rows, err := repository.ProvideStore[usagedomain.UsageRecord](db).Find(ctx,
		&usagedomain.UsageRecord{UserID: userID},
		option.WithWhere("created_at >= ?", since),
		option.WithOrder("created_at DESC"),
		option.WithOrder("id DESC"),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
	if err != nil {
		return nil, err
	}
	items := make([]usagedomain.UsageRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, *row)
	}
	return items, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, userID string, since time.Time) (int64, error) {
	return repository.ProvideStore[usagedomain.UsageRecord](db).Count(ctx,
		&usagedomain.UsageRecord{UserID: userID},
		option.WithWhere("created_at >= ?", since),
	)
}

func (r *repo) Summarize(ctx context.Context, db *gorm.DB, userID string, since time.Time) (usagedomain.Summary, error) {
	var summary usagedomain.Summary
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS total_requests,
		        COALESCE(SUM(input_tokens), 0) AS input_tokens,
		        COALESCE(SUM(output_tokens), 0) AS output_tokens,
		        COALESCE(SUM(total_tokens), 0) AS total_tokens,
		        COALESCE(SUM(total_cost), 0) AS total_cost
		 FROM usage_records
		 WHERE user_id = ? AND created_at >= ?`,
		userID,
		since,
	).Scan(&summary).Error
	return summary, err
}
