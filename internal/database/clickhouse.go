// Package database holds connection helpers for the analytics store.
package database

import (
	"database/sql"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/thrivesend/pulse/internal/logging"
)

// ClickHouseConfig holds ClickHouse connection settings
type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
	Debug    bool
}

// ConnectClickHouse establishes a connection to ClickHouse using the
// database/sql interface, used for the aggregate SELECTs the metrics
// source runs.
func ConnectClickHouse(cfg ClickHouseConfig, logger logging.Logger) (*sql.DB, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
	})

	if err := conn.Ping(); err != nil {
		logger.WithError(err).Error("Failed to ping ClickHouse")
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("Connected to ClickHouse")

	return conn, nil
}

// MustConnectClickHouse connects to ClickHouse or exits the process
func MustConnectClickHouse(cfg ClickHouseConfig, logger logging.Logger) *sql.DB {
	conn, err := ConnectClickHouse(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	return conn
}
