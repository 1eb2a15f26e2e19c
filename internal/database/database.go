package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-ordering/internal/config"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// Open connects to PostgreSQL, retrying while the server comes up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.PingContext(ctx)
			if err == nil {
				break
			}
			sqldb.Close()
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", maxRetries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// IsPostgres reports whether row locks (FOR UPDATE) are available.
func IsPostgres(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}

var tables = []interface{}{
	(*models.Organization)(nil),
	(*models.OrganizationUser)(nil),
	(*models.Event)(nil),
	(*models.FeeSchedule)(nil),
	(*models.FeeScheduleRange)(nil),
	(*models.TicketType)(nil),
	(*models.TicketPricing)(nil),
	(*models.TicketInstance)(nil),
	(*models.Code)(nil),
	(*models.CodeTicketType)(nil),
	(*models.Hold)(nil),
	(*models.Comp)(nil),
	(*models.Order)(nil),
	(*models.OrderItem)(nil),
	(*models.Payment)(nil),
	(*models.Refund)(nil),
	(*models.RefundedTicket)(nil),
	(*models.DomainEvent)(nil),
}

// CreateSchema builds every table from the bun models. Tests and local
// sqlite runs use it; PostgreSQL deployments use the SQL migrations.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.Order)(nil)).
		Index("orders_one_draft_cart_per_user").
		Unique().
		IfNotExists().
		Column("user_id").
		Where("status = 'Draft' AND order_type = 'Cart'").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create draft cart index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.TicketInstance)(nil)).
		Index("ticket_instances_pool").
		IfNotExists().
		Column("ticket_type_id", "status").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create ticket instance index: %w", err)
	}
	return nil
}
