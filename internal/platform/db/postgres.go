package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackportal/hackportal-backend/internal/pool"
)

// Dialer returns a pool.Dialer opening PostgreSQL connections for dsn.
func Dialer(dsn string, connectTimeout time.Duration) (pool.Dialer, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if connectTimeout > 0 {
		config.ConnectTimeout = connectTimeout
	}

	return func(ctx context.Context) (pool.Conn, error) {
		conn, err := pgx.ConnectConfig(ctx, config.Copy())
		if err != nil {
			return nil, fmt.Errorf("platform/db: connect: %w", err)
		}
		return conn, nil
	}, nil
}

// Ping opens one connection through dial and checks the server answers.
func Ping(ctx context.Context, dial pool.Dialer) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(context.Background())
	}()
	if _, err := conn.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("platform/db: ping: %w", err)
	}
	return nil
}
