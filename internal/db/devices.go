package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type DeviceStore struct {
	conn *sql.DB
}

func NewDeviceStore(conn *sql.DB) *DeviceStore {
	return &DeviceStore{conn: conn}
}

func (s *DeviceStore) Create(ctx context.Context, d *Device) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, InsertDevice, d.ID, d.Name, d.KeyHash, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (s *DeviceStore) Get(ctx context.Context, id string) (*Device, error) {
	d := &Device{}
	var lastSeen sql.NullTime
	err := s.conn.QueryRowContext(ctx, GetDeviceByID, id).Scan(
		&d.ID, &d.Name, &d.KeyHash, &lastSeen, &d.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if lastSeen.Valid {
		d.LastSeenAt = &lastSeen.Time
	}
	return d, nil
}

func (s *DeviceStore) List(ctx context.Context) ([]*Device, error) {
	rows, err := s.conn.QueryContext(ctx, ListDevices)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d := &Device{}
		var lastSeen sql.NullTime
		if err := rows.Scan(&d.ID, &d.Name, &d.KeyHash, &lastSeen, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		if lastSeen.Valid {
			d.LastSeenAt = &lastSeen.Time
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Touch records that an agent for this device was last seen now.
func (s *DeviceStore) Touch(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, TouchDevice, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return nil
}
