package repository

import (
	"context"

	"github.com/smallbiznis/creditledger/pkg/db/option"
)

// Repository is a generic GORM-backed store for append-mostly models. Callers
// scope it to a transaction by building it from that transaction.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
}
