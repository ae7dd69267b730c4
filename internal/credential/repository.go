package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines device record persistence.
//
// Implementations must be safe for concurrent use and must never return a
// partially written record.
type Repository interface {
	// Lookup returns the record for deviceID. A missing record is reported
	// with found=false and a nil error.
	Lookup(ctx context.Context, deviceID string) (rec DeviceRecord, found bool, err error)

	// Upsert inserts the record or, when deviceID already exists, replaces
	// its keys and region. CreatedAt is kept from the first insert.
	// The stored record is returned.
	Upsert(ctx context.Context, rec DeviceRecord) (DeviceRecord, error)
}

// timeFormat is the on-disk timestamp format.
const timeFormat = time.RFC3339Nano

// SQLiteRepository implements Repository using SQLite.
//
// Writes are single-statement upserts, so SQLite's own locking serialises
// conflicting writers (last completed write wins).
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Lookup retrieves a device record by id.
func (r *SQLiteRepository) Lookup(ctx context.Context, deviceID string) (DeviceRecord, bool, error) {
	const query = `
		SELECT device_id, api_key, app_key, region, created_at, updated_at
		FROM device_records
		WHERE device_id = ?`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return DeviceRecord{}, false, nil
	}
	if err != nil {
		return DeviceRecord{}, false, fmt.Errorf("querying device record: %w", err)
	}
	return rec, true, nil
}

// Upsert inserts or updates a device record by primary key.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec DeviceRecord) (DeviceRecord, error) {
	if err := ValidateDeviceID(rec.DeviceID); err != nil {
		return DeviceRecord{}, err
	}
	if rec.Region == "" {
		rec.Region = DefaultRegion
	}

	now := r.now().Format(timeFormat)

	// RETURNING gives back the row as stored, including the original
	// created_at when the conflict branch ran.
	const query = `
		INSERT INTO device_records (device_id, api_key, app_key, region, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			api_key    = excluded.api_key,
			app_key    = excluded.app_key,
			region     = excluded.region,
			updated_at = excluded.updated_at
		RETURNING device_id, api_key, app_key, region, created_at, updated_at`

	stored, err := scanRecord(r.db.QueryRowContext(ctx, query,
		rec.DeviceID, rec.APIKey, rec.AppKey, rec.Region, now, now,
	))
	if err != nil {
		return DeviceRecord{}, fmt.Errorf("upserting device record: %w", err)
	}
	return stored, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (DeviceRecord, error) {
	var (
		rec                  DeviceRecord
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.DeviceID, &rec.APIKey, &rec.AppKey, &rec.Region, &createdAt, &updatedAt); err != nil {
		return DeviceRecord{}, err
	}

	var err error
	if rec.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return DeviceRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return DeviceRecord{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return rec, nil
}
