// Package repository selects the configured record store.
package repository

import (
	"context"
	"fmt"

	"docai/internal/config"
	"docai/internal/domain"
	"docai/internal/port"
	"docai/internal/repository/firestore"
	"docai/internal/repository/postgres"
)

// Open connects to the store named by cfg.Store.Driver. The returned close
// function releases the underlying connection.
func Open(ctx context.Context, cfg *config.Config) (port.ShippingRecordRepository, func() error, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return nil, nil, &domain.StoreUnavailableError{Op: "connect", Err: err}
		}
		return postgres.NewShippingRecordRepo(db), db.Close, nil
	case config.StoreDriverFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, nil, &domain.StoreUnavailableError{Op: "connect", Err: err}
		}
		return firestore.NewShippingRecordRepo(client, cfg.Firestore.Collection), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
