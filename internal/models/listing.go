// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package models

import (
	"fmt"
	"strings"
	"time"
)

// Account is an external business-listing account visible to the caller's credentials.
type Account struct {
	Name        string `json:"name"` // accounts/{accountId}
	DisplayName string `json:"display_name"`
	Type        string `json:"type,omitempty"`
	Role        string `json:"role,omitempty"`
}

// ID returns the account id without the "accounts/" prefix.
func (a Account) ID() string {
	return strings.TrimPrefix(a.Name, "accounts/")
}

// Address is a postal address as reported by the listing API. Any part may be empty.
type Address struct {
	Lines      []string `json:"lines,omitempty"`
	Locality   string   `json:"locality,omitempty"`
	Region     string   `json:"region,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	Country    string   `json:"country,omitempty"`
	// Formatted is a single-line address used when the structured parts are missing.
	Formatted string `json:"formatted,omitempty"`
}

// Location is the canonical location record produced by the fetch boundary.
type Location struct {
	Name            string  `json:"name"` // accounts/{accountId}/locations/{locationId}
	Title           string  `json:"title"`
	StoreCode       string  `json:"store_code,omitempty"`
	PrimaryPhone    string  `json:"primary_phone,omitempty"`
	WebsiteURI      string  `json:"website_uri,omitempty"`
	PrimaryCategory string  `json:"primary_category,omitempty"`
	Address         Address `json:"address"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
	Verified        bool    `json:"verified"`
}

// LocationRef is a parsed two-segment location identifier.
type LocationRef struct {
	AccountID  string
	LocationID string
}

// AccountName returns accounts/{AccountID}.
func (r LocationRef) AccountName() string { return "accounts/" + r.AccountID }

// String returns the full resource name.
func (r LocationRef) String() string {
	return "accounts/" + r.AccountID + "/locations/" + r.LocationID
}

// ParseLocationName splits accounts/{a}/locations/{l}. Anything else is
// rejected, including names with extra segments or empty ids.
func ParseLocationName(name string) (LocationRef, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 4 || parts[0] != "accounts" || parts[2] != "locations" || parts[1] == "" || parts[3] == "" {
		return LocationRef{}, fmt.Errorf("location name %q is not accounts/{id}/locations/{id}", name)
	}
	return LocationRef{AccountID: parts[1], LocationID: parts[3]}, nil
}

// Credentials are supplied by the caller of a sync and passed to the listing client.
type Credentials struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Expiry       time.Time `json:"-"`
	// Email is the owner contact used to find an existing Brand.
	Email string `json:"email,omitempty"`
}
