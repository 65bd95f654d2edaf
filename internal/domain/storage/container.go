package storage

import (
	"kalda/internal/domain/members"
	"kalda/internal/domain/paymentsrepo"
	"kalda/internal/domain/receipts"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Container struct {
	pool     *pgxpool.Pool
	Members  members.Store
	Payments paymentsrepo.Store
	PayLogs  paymentsrepo.LogsStore
	Receipts receipts.Store
}

func NewContainer(db *pgxpool.Pool, receiptSalt string) (*Container, error) {
	receiptRepo, err := receipts.NewRepository(db, receiptSalt)
	if err != nil {
		return nil, err
	}

	return &Container{
		pool:     db,
		Members:  members.NewRepository(db),
		Payments: paymentsrepo.NewRepository(db),
		PayLogs:  paymentsrepo.NewLogsRepository(db),
		Receipts: receiptRepo,
	}, nil
}
