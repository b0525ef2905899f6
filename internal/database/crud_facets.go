// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
crud_facets.go - Natural-Key Batch Upserts

Every facet batch is written in one transaction:

 1. de-duplicate the batch by natural key (last record wins)
 2. load content hashes for the keys that already exist
 3. INSERT ... ON CONFLICT (natural key) DO UPDATE only the rows that are new
    or whose content hash changed

Key columns are never in the DO UPDATE SET list. Re-running an identical
batch writes nothing and reports Inserted = 0, Modified = 0.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/listingsync/internal/metrics"
	"github.com/tomtom215/listingsync/internal/models"
)

// insertChunkSize bounds the rows per INSERT statement.
const insertChunkSize = 200

// facetTable describes how one facet type maps onto its table.
type facetTable[T any] struct {
	table    string
	conflict []string // natural key columns
	columns  []string // data columns, natural key columns included
	key      func(*T) string
	values   func(*T) []interface{}
}

func (ft *facetTable[T]) mutableColumns() []string {
	isKey := make(map[string]bool, len(ft.conflict))
	for _, c := range ft.conflict {
		isKey[c] = true
	}
	out := make([]string, 0, len(ft.columns))
	for _, c := range ft.columns {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return append(out, "natural_key", "content_hash", "updated_at")
}

var reviewsTable = &facetTable[models.Review]{
	table:    "reviews",
	conflict: []string{"review_id"},
	columns: []string{"review_id", "store_id", "brand_id", "reviewer_name", "star_rating", "comment",
		"reply_comment", "reply_time", "create_time", "update_time"},
	key: func(r *models.Review) string { return r.ReviewID },
	values: func(r *models.Review) []interface{} {
		return []interface{}{r.ReviewID, r.StoreID, r.BrandID, r.ReviewerName, r.StarRating, r.Comment,
			r.ReplyComment, r.ReplyTime, nullTime(r.CreateTime), nullTime(r.UpdateTime)}
	},
}

var postsTable = &facetTable[models.Post]{
	table:    "posts",
	conflict: []string{"post_id"},
	columns: []string{"post_id", "store_id", "brand_id", "topic_type", "summary", "state",
		"call_to_action", "call_to_action_url", "media_url", "search_url", "create_time", "update_time"},
	key: func(p *models.Post) string { return p.PostID },
	values: func(p *models.Post) []interface{} {
		return []interface{}{p.PostID, p.StoreID, p.BrandID, p.TopicType, p.Summary, p.State,
			p.CallToAction, p.CallToActionURL, p.MediaURL, p.SearchURL, nullTime(p.CreateTime), nullTime(p.UpdateTime)}
	},
}

var performanceTable = &facetTable[models.PerformanceSample]{
	table:    "performance_samples",
	conflict: []string{"store_id", "period_start", "period_end"},
	columns: []string{"store_id", "period_start", "period_end", "brand_id",
		"desktop_maps_impressions", "desktop_search_impressions", "mobile_maps_impressions", "mobile_search_impressions",
		"call_clicks", "website_clicks", "direction_requests", "conversations", "booking_clicks", "food_orders",
		"total_impressions", "total_actions", "conversion_rate", "click_through_rate"},
	key: func(p *models.PerformanceSample) string {
		return p.StoreID + "|" + p.PeriodStart.Format(time.DateOnly) + "|" + p.PeriodEnd.Format(time.DateOnly)
	},
	values: func(p *models.PerformanceSample) []interface{} {
		return []interface{}{p.StoreID, dateOnly(p.PeriodStart), dateOnly(p.PeriodEnd), p.BrandID,
			p.DesktopMapsImpressions, p.DesktopSearchImpressions, p.MobileMapsImpressions, p.MobileSearchImpressions,
			p.CallClicks, p.WebsiteClicks, p.DirectionRequests, p.Conversations, p.BookingClicks, p.FoodOrders,
			p.TotalImpressions, p.TotalActions, p.ConversionRate, p.ClickThroughRate}
	},
}

var keywordsTable = &facetTable[models.SearchKeywordSample]{
	table:    "search_keyword_samples",
	conflict: []string{"store_id", "keyword", "period_year", "period_month"},
	columns: []string{"store_id", "keyword", "period_year", "period_month", "brand_id",
		"impressions", "below_threshold"},
	key: func(k *models.SearchKeywordSample) string {
		return k.StoreID + "|" + k.Keyword + "|" + strconv.Itoa(k.Year) + "|" + strconv.Itoa(k.Month)
	},
	values: func(k *models.SearchKeywordSample) []interface{} {
		return []interface{}{k.StoreID, k.Keyword, k.Year, k.Month, k.BrandID, k.Impressions, k.BelowThreshold}
	},
}

// UpsertReviews writes reviews keyed by review id.
func (db *DB) UpsertReviews(ctx context.Context, reviews []models.Review) (models.UpsertResult, error) {
	return upsertFacet(ctx, db, reviewsTable, reviews)
}

// UpsertPosts writes posts keyed by post id.
func (db *DB) UpsertPosts(ctx context.Context, posts []models.Post) (models.UpsertResult, error) {
	return upsertFacet(ctx, db, postsTable, posts)
}

// UpsertPerformanceSamples writes samples keyed by (store, period start, period end).
// Derived totals and rates are recomputed from the raw counts before writing.
func (db *DB) UpsertPerformanceSamples(ctx context.Context, samples []models.PerformanceSample) (models.UpsertResult, error) {
	for i := range samples {
		samples[i].ComputeDerived()
	}
	return upsertFacet(ctx, db, performanceTable, samples)
}

// UpsertKeywordSamples writes samples keyed by (store, keyword, year, month).
func (db *DB) UpsertKeywordSamples(ctx context.Context, samples []models.SearchKeywordSample) (models.UpsertResult, error) {
	return upsertFacet(ctx, db, keywordsTable, samples)
}

type pendingRow struct {
	key    string
	hash   string
	values []interface{}
}

func upsertFacet[T any](ctx context.Context, db *DB, ft *facetTable[T], records []T) (models.UpsertResult, error) {
	var result models.UpsertResult
	if len(records) == 0 {
		return result, nil
	}
	start := time.Now()

	// de-duplicate, keeping the last record for each key in first-seen order
	order := make([]string, 0, len(records))
	rows := make(map[string]pendingRow, len(records))
	for i := range records {
		k := ft.key(&records[i])
		if k == "" {
			return result, fmt.Errorf("upsert %s: record %d has an empty natural key", ft.table, i)
		}
		vals := ft.values(&records[i])
		h, err := contentHash(vals)
		if err != nil {
			return result, fmt.Errorf("upsert %s: hash record %d: %w", ft.table, i, err)
		}
		if _, seen := rows[k]; !seen {
			order = append(order, k)
		}
		rows[k] = pendingRow{key: k, hash: h, values: vals}
	}
	result.Upserted = len(order)

	mu := db.lockTable(ft.table)
	defer mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.UpsertResult{}, wrapError("begin "+ft.table+" upsert", err)
	}

	existing, err := loadHashes(ctx, tx, ft.table, order)
	if err != nil {
		rollbackQuietly(tx)
		return models.UpsertResult{}, wrapError("load "+ft.table+" hashes", err)
	}

	var write []pendingRow
	var inserted, modified int
	for _, k := range order {
		row := rows[k]
		prev, ok := existing[k]
		switch {
		case !ok:
			inserted++
		case prev != row.hash:
			modified++
		default:
			continue
		}
		write = append(write, row)
	}

	now := time.Now().UTC()
	for startIdx := 0; startIdx < len(write); startIdx += insertChunkSize {
		end := min(startIdx+insertChunkSize, len(write))
		query, args := ft.buildUpsert(write[startIdx:end], now)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			rollbackQuietly(tx)
			metrics.RecordDBQuery("upsert", ft.table, time.Since(start), err)
			return models.UpsertResult{}, wrapError("upsert "+ft.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordDBQuery("upsert", ft.table, time.Since(start), err)
		return models.UpsertResult{}, wrapError("commit "+ft.table+" upsert", err)
	}
	metrics.RecordDBQuery("upsert", ft.table, time.Since(start), nil)

	result.Inserted = inserted
	result.Modified = modified
	return result, nil
}

func (ft *facetTable[T]) buildUpsert(rows []pendingRow, now time.Time) (string, []interface{}) {
	cols := append(append([]string{}, ft.columns...), "natural_key", "content_hash", "created_at", "updated_at")
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ft.table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(rows)*len(cols))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholder)
		args = append(args, r.values...)
		args = append(args, r.key, r.hash, now, now)
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(strings.Join(ft.conflict, ", "))
	b.WriteString(") DO UPDATE SET ")
	for i, c := range ft.mutableColumns() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(c)
	}
	return b.String(), args
}

func loadHashes(ctx context.Context, tx *sql.Tx, table string, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for startIdx := 0; startIdx < len(keys); startIdx += insertChunkSize {
		end := min(startIdx+insertChunkSize, len(keys))
		chunk := keys[startIdx:end]
		args := make([]interface{}, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		query := "SELECT natural_key, content_hash FROM " + table +
			" WHERE natural_key IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ") + ")"

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var k, h string
			if err := rows.Scan(&k, &h); err != nil {
				closeWithLog(rows, "rows")
				return nil, err
			}
			out[k] = h
		}
		err = rows.Err()
		closeWithLog(rows, "rows")
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// contentHash fingerprints a row's column values.
func contentHash(values []interface{}) (string, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	_, _ = h.Write(data) //nolint:errcheck // hash writes never fail
	return strconv.FormatUint(h.Sum64(), 16), nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
