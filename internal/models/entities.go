// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package models

import "time"

// Unknown is stored for address fields the listing API did not provide.
const Unknown = "Unknown"

// Brand is the internal record for one external account.
type Brand struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Slug                string     `json:"slug"`
	ExternalAccountID   string     `json:"external_account_id"`
	ExternalAccountName string     `json:"external_account_name"`
	ContactEmail        string     `json:"contact_email,omitempty"`
	AddressLine         string     `json:"address_line"`
	City                string     `json:"city"`
	State               string     `json:"state"`
	PostalCode          string     `json:"postal_code"`
	Country             string     `json:"country"`
	Connected           bool       `json:"connected"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Store is the internal record for one external location, owned by a Brand.
type Store struct {
	ID                 string     `json:"id"`
	BrandID            string     `json:"brand_id"`
	ExternalLocationID string     `json:"external_location_id"`
	Name               string     `json:"name"`
	Slug               string     `json:"slug"`
	Code               string     `json:"code"`
	AddressLine        string     `json:"address_line"`
	City               string     `json:"city"`
	State              string     `json:"state"`
	PostalCode         string     `json:"postal_code"`
	Country            string     `json:"country"`
	Phone              string     `json:"phone,omitempty"`
	Website            string     `json:"website,omitempty"`
	Category           string     `json:"category,omitempty"`
	Latitude           float64    `json:"latitude,omitempty"`
	Longitude          float64    `json:"longitude,omitempty"`
	Verified           bool       `json:"verified"`
	LastSyncAt         *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Facet names one of the four per-location data sets.
type Facet string

const (
	FacetPosts    Facet = "posts"
	FacetInsights Facet = "insights"
	FacetKeywords Facet = "keywords"
	FacetReviews  Facet = "reviews"
)

// Facets lists every facet in processing order.
var Facets = []Facet{FacetPosts, FacetInsights, FacetKeywords, FacetReviews}

// Review natural key: ReviewID.
type Review struct {
	ReviewID     string     `json:"review_id"`
	StoreID      string     `json:"store_id"`
	BrandID      string     `json:"brand_id"`
	ReviewerName string     `json:"reviewer_name"`
	StarRating   int        `json:"star_rating"` // 0 when unspecified
	Comment      string     `json:"comment,omitempty"`
	ReplyComment string     `json:"reply_comment,omitempty"`
	ReplyTime    *time.Time `json:"reply_time,omitempty"`
	CreateTime   time.Time  `json:"create_time"`
	UpdateTime   time.Time  `json:"update_time"`
}

// Post natural key: PostID.
type Post struct {
	PostID          string    `json:"post_id"`
	StoreID         string    `json:"store_id"`
	BrandID         string    `json:"brand_id"`
	TopicType       string    `json:"topic_type"`
	Summary         string    `json:"summary,omitempty"`
	State           string    `json:"state,omitempty"`
	CallToAction    string    `json:"call_to_action,omitempty"`
	CallToActionURL string    `json:"call_to_action_url,omitempty"`
	MediaURL        string    `json:"media_url,omitempty"`
	SearchURL       string    `json:"search_url,omitempty"`
	CreateTime      time.Time `json:"create_time"`
	UpdateTime      time.Time `json:"update_time"`
}

// PerformanceSample aggregates daily metrics over one period.
// Natural key: (StoreID, PeriodStart, PeriodEnd).
type PerformanceSample struct {
	StoreID     string    `json:"store_id"`
	BrandID     string    `json:"brand_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	DesktopMapsImpressions   int64 `json:"desktop_maps_impressions"`
	DesktopSearchImpressions int64 `json:"desktop_search_impressions"`
	MobileMapsImpressions    int64 `json:"mobile_maps_impressions"`
	MobileSearchImpressions  int64 `json:"mobile_search_impressions"`
	CallClicks               int64 `json:"call_clicks"`
	WebsiteClicks            int64 `json:"website_clicks"`
	DirectionRequests        int64 `json:"direction_requests"`
	Conversations            int64 `json:"conversations"`
	BookingClicks            int64 `json:"booking_clicks"`
	FoodOrders               int64 `json:"food_orders"`

	// Derived by ComputeDerived.
	TotalImpressions int64   `json:"total_impressions"`
	TotalActions     int64   `json:"total_actions"`
	ConversionRate   float64 `json:"conversion_rate"`    // percent of impressions that led to an action
	ClickThroughRate float64 `json:"click_through_rate"` // percent of impressions that led to a website click
}

// ComputeDerived fills the totals and rates from the raw counts.
// Rates are zero when there were no impressions.
func (p *PerformanceSample) ComputeDerived() {
	p.TotalImpressions = p.DesktopMapsImpressions + p.DesktopSearchImpressions +
		p.MobileMapsImpressions + p.MobileSearchImpressions
	p.TotalActions = p.CallClicks + p.WebsiteClicks + p.DirectionRequests +
		p.Conversations + p.BookingClicks + p.FoodOrders
	p.ConversionRate = 0
	p.ClickThroughRate = 0
	if p.TotalImpressions > 0 {
		p.ConversionRate = roundRate(float64(p.TotalActions) / float64(p.TotalImpressions) * 100)
		p.ClickThroughRate = roundRate(float64(p.WebsiteClicks) / float64(p.TotalImpressions) * 100)
	}
}

// roundRate keeps four decimal places so recomputation is stable.
func roundRate(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

// SearchKeywordSample is monthly impressions for one search keyword.
// Natural key: (StoreID, Keyword, Year, Month).
type SearchKeywordSample struct {
	StoreID     string `json:"store_id"`
	BrandID     string `json:"brand_id"`
	Keyword     string `json:"keyword"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Impressions int64  `json:"impressions"`
	// BelowThreshold means the API reported only an upper bound, stored in Impressions.
	BelowThreshold bool `json:"below_threshold"`
}

// UpsertResult reports one batched write.
type UpsertResult struct {
	Inserted int `json:"inserted"` // natural keys that did not exist before
	Modified int `json:"modified"` // existing rows whose content changed
	Upserted int `json:"upserted"` // rows written, after de-duplication
}

// Add accumulates r into u.
func (u *UpsertResult) Add(r UpsertResult) {
	u.Inserted += r.Inserted
	u.Modified += r.Modified
	u.Upserted += r.Upserted
}
