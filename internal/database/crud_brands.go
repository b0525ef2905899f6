// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tomtom215/listingsync/internal/metrics"
	"github.com/tomtom215/listingsync/internal/models"
)

const brandColumns = `id, name, slug, external_account_id, external_account_name, contact_email,
	address_line, city, state, postal_code, country, connected, last_sync_at, created_at, updated_at`

// FindBrand looks a Brand up by external account id, falling back to the
// owner email. A match on the account id wins over an email match.
func (db *DB) FindBrand(ctx context.Context, externalAccountID, email string) (*models.Brand, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `SELECT `+brandColumns+` FROM brands
		WHERE external_account_id = ? OR (? <> '' AND contact_email = ?)
		ORDER BY CASE WHEN external_account_id = ? THEN 0 ELSE 1 END, created_at
		LIMIT 1`, externalAccountID, email, email, externalAccountID)
	b, err := scanBrand(row)
	metrics.RecordDBQuery("select", "brands", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapError("find brand", err)
	}
	return b, nil
}

// GetBrand loads a Brand by internal id.
func (db *DB) GetBrand(ctx context.Context, id string) (*models.Brand, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+brandColumns+` FROM brands WHERE id = ?`, id)
	b, err := scanBrand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapError("get brand", err)
	}
	return b, nil
}

// BrandSlugExists reports whether slug is taken.
func (db *DB) BrandSlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM brands WHERE slug = ?`, slug).Scan(&n); err != nil {
		return false, wrapError("check brand slug", err)
	}
	return n > 0, nil
}

// CreateBrand inserts b, stamping its timestamps.
func (db *DB) CreateBrand(ctx context.Context, b *models.Brand) error {
	start := time.Now()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	_, err := db.conn.ExecContext(ctx, `INSERT INTO brands (`+brandColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Slug, nullString(b.ExternalAccountID), b.ExternalAccountName, nullString(b.ContactEmail),
		b.AddressLine, b.City, b.State, b.PostalCode, b.Country, b.Connected, b.LastSyncAt, b.CreatedAt, b.UpdatedAt)
	metrics.RecordDBQuery("insert", "brands", time.Since(start), err)
	return wrapError("create brand", err)
}

// UpdateBrandAccount refreshes the account linkage of an existing Brand.
// Address, slug and name are left as they are. The external account id is
// only written when the Brand has none yet, so its unique index is untouched
// on ordinary syncs.
func (db *DB) UpdateBrandAccount(ctx context.Context, b *models.Brand, linkAccount bool) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, `UPDATE brands SET
		external_account_name = ?, contact_email = ?, connected = ?, updated_at = ?
		WHERE id = ?`,
		b.ExternalAccountName, nullString(b.ContactEmail), b.Connected, b.UpdatedAt, b.ID)
	if err != nil {
		return wrapError("update brand", err)
	}
	if linkAccount {
		_, err = db.conn.ExecContext(ctx, `UPDATE brands SET external_account_id = ? WHERE id = ?`,
			nullString(b.ExternalAccountID), b.ID)
	}
	return wrapError("link brand account", err)
}

// TouchBrand records a finished sync on the Brand.
func (db *DB) TouchBrand(ctx context.Context, id string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE brands SET last_sync_at = ?, connected = true, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
	return wrapError("touch brand", err)
}

func scanBrand(row rowScanner) (*models.Brand, error) {
	var (
		b                     models.Brand
		extID, extName, email sql.NullString
		lastSync              sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Name, &b.Slug, &extID, &extName, &email,
		&b.AddressLine, &b.City, &b.State, &b.PostalCode, &b.Country, &b.Connected, &lastSync, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.ExternalAccountID = extID.String
	b.ExternalAccountName = extName.String
	b.ContactEmail = email.String
	if lastSync.Valid {
		t := lastSync.Time
		b.LastSyncAt = &t
	}
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
