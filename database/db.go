/*
Copyright 2025 Vidigest Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"database/sql"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vidigest/vidigest/config"
)

// Package-level singleton; the pipeline and the delivery workers share one
// connection pool.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	return GetDBConnection(configuration)
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := db.Ping(); err != nil {
		logrus.Errorf("database connection error: %v", err)
		return nil, errors.Wrap(err, "pinging database")
	}
	if err := createContentItemTable(db); err != nil {
		return nil, err
	}
	if err := createLedgerEntryTable(db); err != nil {
		return nil, err
	}
	if err := createDeliveryMessageTable(db); err != nil {
		return nil, err
	}
	return db, nil
}

// createContentItemTable creates a PostgreSQL table for the ContentItem struct
func createContentItemTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS content_items (
			id SERIAL PRIMARY KEY,
			video_id TEXT NOT NULL UNIQUE,
			channel_id TEXT NOT NULL,
			title TEXT,
			cleaned_transcript TEXT,
			primary_summary TEXT,
			secondary_summary TEXT,
			synthesis_summary TEXT,
			final_summary TEXT,
			stages JSONB,
			cost_estimate NUMERIC(12,6) NOT NULL DEFAULT 0,
			fallback_applied BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

// createLedgerEntryTable creates a PostgreSQL table for the LedgerEntry struct
func createLedgerEntryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id SERIAL PRIMARY KEY,
			video_id TEXT NOT NULL UNIQUE,
			channel_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			claim_token TEXT,
			claimed_at TIMESTAMP,
			claim_expires_at TIMESTAMP,
			completed_at TIMESTAMP,
			failure_reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createDeliveryMessageTable creates a PostgreSQL table for the DeliveryMessage struct
func createDeliveryMessageTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS delivery_messages (
			id SERIAL PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE,
			video_id TEXT NOT NULL,
			target TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			attempts INT NOT NULL DEFAULT 0,
			next_retry_at TIMESTAMP,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
