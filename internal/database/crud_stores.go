// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/listingsync/internal/metrics"
	"github.com/tomtom215/listingsync/internal/models"
)

const storeColumns = `id, brand_id, external_location_id, name, slug, code,
	address_line, city, state, postal_code, country, phone, website, category,
	latitude, longitude, verified, last_sync_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// FindStore looks a Store up by external location id. A location maps to
// one Store, owned by the Brand that first synced it.
func (db *DB) FindStore(ctx context.Context, externalLocationID string) (*models.Store, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores
		WHERE external_location_id = ?`, externalLocationID)
	s, err := scanStore(row)
	metrics.RecordDBQuery("select", "stores", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapError("find store", err)
	}
	return s, nil
}

// StoreSlugExists reports whether slug is taken by any Store.
func (db *DB) StoreSlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM stores WHERE slug = ?`, slug).Scan(&n); err != nil {
		return false, wrapError("check store slug", err)
	}
	return n > 0, nil
}

// StoreCodeExists reports whether code is taken within a Brand.
func (db *DB) StoreCodeExists(ctx context.Context, brandID, code string) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM stores WHERE brand_id = ? AND code = ?`, brandID, code).Scan(&n); err != nil {
		return false, wrapError("check store code", err)
	}
	return n > 0, nil
}

// CreateStore inserts s, stamping its timestamps.
func (db *DB) CreateStore(ctx context.Context, s *models.Store) error {
	start := time.Now()
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := db.conn.ExecContext(ctx, `INSERT INTO stores (`+storeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.BrandID, nullString(s.ExternalLocationID), s.Name, s.Slug, s.Code,
		s.AddressLine, s.City, s.State, s.PostalCode, s.Country,
		nullString(s.Phone), nullString(s.Website), nullString(s.Category),
		s.Latitude, s.Longitude, s.Verified, s.LastSyncAt, s.CreatedAt, s.UpdatedAt)
	metrics.RecordDBQuery("insert", "stores", time.Since(start), err)
	return wrapError(fmt.Sprintf("create store %s", s.ExternalLocationID), err)
}

// UpdateStoreListing refreshes the denormalized listing fields and the sync
// timestamp. Identity columns (slug, code, external id) are not touched.
func (db *DB) UpdateStoreListing(ctx context.Context, s *models.Store) error {
	start := time.Now()
	s.UpdatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, `UPDATE stores SET
		name = ?, address_line = ?, city = ?, state = ?, postal_code = ?, country = ?,
		phone = ?, website = ?, category = ?, latitude = ?, longitude = ?, verified = ?,
		last_sync_at = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.AddressLine, s.City, s.State, s.PostalCode, s.Country,
		nullString(s.Phone), nullString(s.Website), nullString(s.Category), s.Latitude, s.Longitude, s.Verified,
		s.LastSyncAt, s.UpdatedAt, s.ID)
	metrics.RecordDBQuery("update", "stores", time.Since(start), err)
	return wrapError("update store", err)
}

func scanStore(row rowScanner) (*models.Store, error) {
	var (
		s                      models.Store
		extID, phone, web, cat sql.NullString
		lat, lng               sql.NullFloat64
		lastSync               sql.NullTime
	)
	err := row.Scan(&s.ID, &s.BrandID, &extID, &s.Name, &s.Slug, &s.Code,
		&s.AddressLine, &s.City, &s.State, &s.PostalCode, &s.Country, &phone, &web, &cat,
		&lat, &lng, &s.Verified, &lastSync, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.ExternalLocationID = extID.String
	s.Phone, s.Website, s.Category = phone.String, web.String, cat.String
	s.Latitude, s.Longitude = lat.Float64, lng.Float64
	if lastSync.Valid {
		t := lastSync.Time
		s.LastSyncAt = &t
	}
	return &s, nil
}
