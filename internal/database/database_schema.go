// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package database

// Facet tables carry natural_key (the natural key rendered as text) and
// content_hash so a batch can tell inserted, modified and unchanged rows
// apart before writing. Only non-key columns are updated on conflict.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS brands (
		id VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		slug VARCHAR NOT NULL UNIQUE,
		external_account_id VARCHAR UNIQUE,
		external_account_name VARCHAR,
		contact_email VARCHAR,
		address_line VARCHAR NOT NULL,
		city VARCHAR NOT NULL,
		state VARCHAR NOT NULL,
		postal_code VARCHAR NOT NULL,
		country VARCHAR NOT NULL,
		connected BOOLEAN NOT NULL DEFAULT false,
		last_sync_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stores (
		id VARCHAR PRIMARY KEY,
		brand_id VARCHAR NOT NULL,
		external_location_id VARCHAR UNIQUE,
		name VARCHAR NOT NULL,
		slug VARCHAR NOT NULL UNIQUE,
		code VARCHAR NOT NULL,
		address_line VARCHAR NOT NULL,
		city VARCHAR NOT NULL,
		state VARCHAR NOT NULL,
		postal_code VARCHAR NOT NULL,
		country VARCHAR NOT NULL,
		phone VARCHAR,
		website VARCHAR,
		category VARCHAR,
		latitude DOUBLE,
		longitude DOUBLE,
		verified BOOLEAN NOT NULL DEFAULT false,
		last_sync_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (brand_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		review_id VARCHAR PRIMARY KEY,
		store_id VARCHAR NOT NULL,
		brand_id VARCHAR NOT NULL,
		reviewer_name VARCHAR,
		star_rating INTEGER NOT NULL DEFAULT 0,
		comment VARCHAR,
		reply_comment VARCHAR,
		reply_time TIMESTAMP,
		create_time TIMESTAMP,
		update_time TIMESTAMP,
		natural_key VARCHAR NOT NULL,
		content_hash VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		post_id VARCHAR PRIMARY KEY,
		store_id VARCHAR NOT NULL,
		brand_id VARCHAR NOT NULL,
		topic_type VARCHAR,
		summary VARCHAR,
		state VARCHAR,
		call_to_action VARCHAR,
		call_to_action_url VARCHAR,
		media_url VARCHAR,
		search_url VARCHAR,
		create_time TIMESTAMP,
		update_time TIMESTAMP,
		natural_key VARCHAR NOT NULL,
		content_hash VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS performance_samples (
		store_id VARCHAR NOT NULL,
		period_start DATE NOT NULL,
		period_end DATE NOT NULL,
		brand_id VARCHAR NOT NULL,
		desktop_maps_impressions BIGINT NOT NULL DEFAULT 0,
		desktop_search_impressions BIGINT NOT NULL DEFAULT 0,
		mobile_maps_impressions BIGINT NOT NULL DEFAULT 0,
		mobile_search_impressions BIGINT NOT NULL DEFAULT 0,
		call_clicks BIGINT NOT NULL DEFAULT 0,
		website_clicks BIGINT NOT NULL DEFAULT 0,
		direction_requests BIGINT NOT NULL DEFAULT 0,
		conversations BIGINT NOT NULL DEFAULT 0,
		booking_clicks BIGINT NOT NULL DEFAULT 0,
		food_orders BIGINT NOT NULL DEFAULT 0,
		total_impressions BIGINT NOT NULL DEFAULT 0,
		total_actions BIGINT NOT NULL DEFAULT 0,
		conversion_rate DOUBLE NOT NULL DEFAULT 0,
		click_through_rate DOUBLE NOT NULL DEFAULT 0,
		natural_key VARCHAR NOT NULL,
		content_hash VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (store_id, period_start, period_end)
	)`,
	`CREATE TABLE IF NOT EXISTS search_keyword_samples (
		store_id VARCHAR NOT NULL,
		keyword VARCHAR NOT NULL,
		period_year INTEGER NOT NULL,
		period_month INTEGER NOT NULL,
		brand_id VARCHAR NOT NULL,
		impressions BIGINT NOT NULL DEFAULT 0,
		below_threshold BOOLEAN NOT NULL DEFAULT false,
		natural_key VARCHAR NOT NULL,
		content_hash VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (store_id, keyword, period_year, period_month)
	)`,
}
