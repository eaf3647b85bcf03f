package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"anonymous-report-service/config"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

const (
	pingMaxWait  = 60 * time.Second
	maxOpenConns = 10
)

func mysqlAddress(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true&clientFoundRows=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// DBConnect opens the MySQL pool and waits for the server to answer pings.
func DBConnect(cfg *config.Config) (*sql.DB, error) {
	return DBConnectPool(cfg, maxOpenConns)
}

// DBConnectPool is DBConnect with an explicit connection cap.
func DBConnectPool(cfg *config.Config, maxConns int) (*sql.DB, error) {
	if maxConns < 1 {
		maxConns = 1
	}
	db, err := sql.Open("mysql", mysqlAddress(cfg))
	if err != nil {
		log.Errorf("Failed to connect to the database: %v", err)
		return nil, err
	}
	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	deadline := time.Now().Add(pingMaxWait)
	waitInterval := time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		pingErr := db.PingContext(ctx)
		cancel()
		if pingErr == nil {
			break
		}
		if time.Now().After(deadline) {
			db.Close()
			return nil, fmt.Errorf("database ping timeout after %v: %w", pingMaxWait, pingErr)
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, pingErr)
		time.Sleep(waitInterval)
		waitInterval *= 2
		if waitInterval > 10*time.Second {
			waitInterval = 10 * time.Second
		}
	}

	log.Infof("Established db connection to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	return db, nil
}
