package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Migrations are versioned and applied exactly once at deployment, never
// interleaved with request handling. GET_LOCK keeps two instances starting
// at the same moment from racing the DDL.
type migration struct {
	name string
	stmt string
}

var migrations = []migration{
	{
		name: "0001_room_types",
		stmt: `CREATE TABLE IF NOT EXISTS room_types (
  id            VARCHAR(36) PRIMARY KEY,
  name          VARCHAR(120) NOT NULL,
  code          VARCHAR(64) NOT NULL,
  base_price    DECIMAL(10,2) NOT NULL,
  max_occupancy INT NOT NULL,
  units         INT NOT NULL,
  active        TINYINT(1) NOT NULL DEFAULT 1,
  UNIQUE KEY uq_room_types_code (code)
)`,
	},
	{
		name: "0002_rate_plans",
		stmt: `CREATE TABLE IF NOT EXISTS rate_plans (
  id                  VARCHAR(36) PRIMARY KEY,
  room_type_id        VARCHAR(36) NOT NULL,
  name                VARCHAR(120) NOT NULL,
  code                VARCHAR(64) NOT NULL,
  price_modifier_pct  DECIMAL(6,2) NOT NULL DEFAULT 0,
  min_stay_nights     INT NOT NULL DEFAULT 0,
  cancellation_policy VARCHAR(255) NOT NULL DEFAULT '',
  deposit_pct         DECIMAL(6,2) NOT NULL DEFAULT 0,
  active              TINYINT(1) NOT NULL DEFAULT 1,
  display_order       INT NOT NULL DEFAULT 0,
  UNIQUE KEY uq_rate_plans_code (code),
  KEY idx_rate_plans_room_type (room_type_id),
  CONSTRAINT fk_rate_plans_room_type FOREIGN KEY (room_type_id) REFERENCES room_types (id)
)`,
	},
	{
		name: "0003_pricing_rules",
		stmt: `CREATE TABLE IF NOT EXISTS pricing_rules (
  id              VARCHAR(36) PRIMARY KEY,
  room_type_id    VARCHAR(36) NULL,
  start_date      DATE NOT NULL,
  end_date        DATE NOT NULL,
  modifier_pct    DECIMAL(6,2) NOT NULL DEFAULT 0,
  min_stay_nights INT NOT NULL DEFAULT 0,
  priority        INT NOT NULL DEFAULT 0,
  active          TINYINT(1) NOT NULL DEFAULT 1,
  created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  KEY idx_pricing_rules_range (room_type_id, start_date, end_date)
)`,
	},
	{
		name: "0004_occupancy_pricing",
		stmt: `CREATE TABLE IF NOT EXISTS occupancy_pricing (
  id            VARCHAR(36) PRIMARY KEY,
  room_type_id  VARCHAR(36) NOT NULL,
  min_occupancy INT NOT NULL,
  max_occupancy INT NOT NULL,
  modifier_pct  DECIMAL(6,2) NOT NULL DEFAULT 0,
  KEY idx_occupancy_room_type (room_type_id),
  CONSTRAINT chk_occupancy_band CHECK (min_occupancy <= max_occupancy)
)`,
	},
	{
		name: "0005_bookings",
		stmt: `CREATE TABLE IF NOT EXISTS bookings (
  id           VARCHAR(36) PRIMARY KEY,
  number       VARCHAR(16) NOT NULL,
  room_type_id VARCHAR(36) NOT NULL,
  rate_plan_id VARCHAR(36) NOT NULL,
  check_in     DATE NOT NULL,
  check_out    DATE NOT NULL,
  guest_name   VARCHAR(120) NOT NULL,
  guest_email  VARCHAR(254) NOT NULL,
  guest_phone  VARCHAR(32) NULL,
  rooms        INT NOT NULL,
  adults       INT NOT NULL,
  children     INT NOT NULL DEFAULT 0,
  base_amount  DECIMAL(12,2) NOT NULL,
  tax_amount   DECIMAL(12,2) NOT NULL,
  total_amount DECIMAL(12,2) NOT NULL,
  status       ENUM('payment_pending','payment_success','booking_requested','confirmed','failed','manual_review') NOT NULL,
  retry_count  INT NOT NULL DEFAULT 0,
  provider_ref VARCHAR(64) NULL,
  created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
  UNIQUE KEY uq_bookings_number (number),
  KEY idx_bookings_sweep (status, retry_count),
  KEY idx_bookings_overlap (room_type_id, check_in, check_out)
)`,
	},
}

// Migrate applies all unapplied migrations in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	var locked int
	if err := db.QueryRowContext(ctx, `SELECT GET_LOCK('roomsync_migrate', 30)`).Scan(&locked); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if locked != 1 {
		return fmt.Errorf("migration lock held elsewhere")
	}
	defer db.ExecContext(context.Background(), `SELECT RELEASE_LOCK('roomsync_migrate')`)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
  name       VARCHAR(64) PRIMARY KEY,
  applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, m.name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if applied > 0 {
			continue
		}
		if _, err := db.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("exec migration %s: %w", m.name, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES (?)`, m.name); err != nil {
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		log.Info().Str("migration", m.name).Msg("applied")
	}
	return nil
}
