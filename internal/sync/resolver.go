// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
resolver.go - Brand and Store Find-or-Create

The resolver maps external accounts and locations onto internal Brand and
Store records. Lookups go by natural identity (external account id or owner
email for Brands, external location id within a Brand for Stores). Records
that do not exist yet are created with a slug that is unique across the table
and, for Stores, a code unique within the Brand.

Storage failures are returned as-is; the orchestrator treats them as fatal.
Missing listing data never fails resolution: names fall back to
"Store {id}" and address parts fall back to models.Unknown.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/tomtom215/listingsync/internal/database"
	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/models"
)

// maxCreateAttempts bounds slug re-allocation after a unique-constraint race.
const maxCreateAttempts = 3

// EntityStore is the Brand/Store persistence the resolver needs.
// *database.DB implements it.
type EntityStore interface {
	FindBrand(ctx context.Context, externalAccountID, email string) (*models.Brand, error)
	BrandSlugExists(ctx context.Context, slug string) (bool, error)
	CreateBrand(ctx context.Context, b *models.Brand) error
	UpdateBrandAccount(ctx context.Context, b *models.Brand, linkAccount bool) error
	TouchBrand(ctx context.Context, id string, at time.Time) error

	FindStore(ctx context.Context, externalLocationID string) (*models.Store, error)
	StoreSlugExists(ctx context.Context, slug string) (bool, error)
	StoreCodeExists(ctx context.Context, brandID, code string) (bool, error)
	CreateStore(ctx context.Context, s *models.Store) error
	UpdateStoreListing(ctx context.Context, s *models.Store) error
}

// Resolver finds or creates Brands and Stores.
type Resolver struct {
	store EntityStore
	now   func() time.Time

	// storeMu serializes Store creation within a run so concurrent workers
	// never allocate the same slug.
	storeMu sync.Mutex
}

// NewResolver returns a resolver over store.
func NewResolver(store EntityStore) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// ResolveBrand returns the Brand for account, creating it when neither the
// account id nor the owner email matches an existing Brand. created reports
// whether a new Brand was inserted.
func (r *Resolver) ResolveBrand(ctx context.Context, account models.Account, email string) (brand *models.Brand, created bool, err error) {
	accountID := account.ID()
	for attempt := 1; ; attempt++ {
		existing, err := r.store.FindBrand(ctx, accountID, email)
		switch {
		case err == nil:
			return existing, false, r.refreshBrand(ctx, existing, account, email)
		case !errors.Is(err, database.ErrNotFound):
			return nil, false, fmt.Errorf("find brand for %s: %w", account.Name, err)
		}

		b, err := r.newBrand(ctx, account, email)
		if err != nil {
			return nil, false, err
		}
		err = r.store.CreateBrand(ctx, b)
		if err == nil {
			return b, true, nil
		}
		if !database.IsUniqueViolation(err) || attempt >= maxCreateAttempts {
			return nil, false, fmt.Errorf("create brand for %s: %w", account.Name, err)
		}
	}
}

func (r *Resolver) refreshBrand(ctx context.Context, b *models.Brand, account models.Account, email string) error {
	link := b.ExternalAccountID == ""
	if link {
		b.ExternalAccountID = account.ID()
	}
	if account.DisplayName != "" {
		b.ExternalAccountName = account.DisplayName
	}
	if email != "" {
		b.ContactEmail = email
	}
	b.Connected = true
	if err := r.store.UpdateBrandAccount(ctx, b, link); err != nil {
		return fmt.Errorf("update brand %s: %w", b.ID, err)
	}
	return nil
}

func (r *Resolver) newBrand(ctx context.Context, account models.Account, email string) (*models.Brand, error) {
	name := strings.TrimSpace(account.DisplayName)
	if name == "" {
		name = "Brand " + account.ID()
	}
	slug, err := uniqueSlug(ctx, name, "brand", r.store.BrandSlugExists)
	if err != nil {
		return nil, fmt.Errorf("allocate brand slug: %w", err)
	}
	return &models.Brand{
		ID:                  uuid.New().String(),
		Name:                name,
		Slug:                slug,
		ExternalAccountID:   account.ID(),
		ExternalAccountName: account.DisplayName,
		ContactEmail:        email,
		AddressLine:         models.Unknown,
		City:                models.Unknown,
		State:               models.Unknown,
		PostalCode:          models.Unknown,
		Country:             models.Unknown,
		Connected:           true,
	}, nil
}

// ResolveStore returns the Store for ref, refreshing its listing fields from
// loc, or creates it under brandID. A location already owned by another
// Brand keeps its Store and owner; callers write facets against the
// returned Store's BrandID. created reports whether a new Store was inserted.
func (r *Resolver) ResolveStore(ctx context.Context, brandID string, ref models.LocationRef, loc models.Location) (store *models.Store, created bool, err error) {
	now := r.now().UTC()

	existing, err := r.store.FindStore(ctx, ref.LocationID)
	switch {
	case err == nil:
		if existing.BrandID != brandID {
			logging.Ctx(ctx).Debug().Str("store_id", existing.ID).Str("owner_brand_id", existing.BrandID).
				Msg("Location already belongs to another brand")
		}
		applyListing(existing, ref, loc)
		existing.LastSyncAt = &now
		if err := r.store.UpdateStoreListing(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("update store %s: %w", ref.LocationID, err)
		}
		return existing, false, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, false, fmt.Errorf("find store %s: %w", ref.LocationID, err)
	}

	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	for attempt := 1; ; attempt++ {
		s, err := r.newStore(ctx, brandID, ref, loc)
		if err != nil {
			return nil, false, err
		}
		s.LastSyncAt = &now
		err = r.store.CreateStore(ctx, s)
		if err == nil {
			return s, true, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, false, err
		}
		// Another creator may have inserted this very location.
		if s, ferr := r.store.FindStore(ctx, ref.LocationID); ferr == nil {
			return s, false, nil
		}
		// Only slug and code collisions are worth another allocation.
		if database.IsUniqueViolationOn(err, "external_location_id") || attempt >= maxCreateAttempts {
			return nil, false, err
		}
	}
}

func (r *Resolver) newStore(ctx context.Context, brandID string, ref models.LocationRef, loc models.Location) (*models.Store, error) {
	s := &models.Store{
		ID:                 uuid.New().String(),
		BrandID:            brandID,
		ExternalLocationID: ref.LocationID,
	}
	applyListing(s, ref, loc)

	slug, err := uniqueSlug(ctx, s.Name, "store", r.store.StoreSlugExists)
	if err != nil {
		return nil, fmt.Errorf("allocate store slug: %w", err)
	}
	s.Slug = slug

	code := strings.TrimSpace(loc.StoreCode)
	if code == "" {
		code = "LOC-" + ref.LocationID
	}
	s.Code, err = uniqueValue(ctx, code, "-", func(ctx context.Context, c string) (bool, error) {
		return r.store.StoreCodeExists(ctx, brandID, c)
	})
	if err != nil {
		return nil, fmt.Errorf("allocate store code: %w", err)
	}
	return s, nil
}

// applyListing copies the denormalized listing fields onto s.
func applyListing(s *models.Store, ref models.LocationRef, loc models.Location) {
	s.Name = strings.TrimSpace(loc.Title)
	if s.Name == "" {
		s.Name = "Store " + ref.LocationID
	}

	line, city, state, postal, country := splitAddress(loc.Address)
	s.AddressLine = orUnknown(line)
	s.City = orUnknown(city)
	s.State = orUnknown(state)
	s.PostalCode = orUnknown(postal)
	s.Country = orUnknown(country)

	s.Phone = loc.PrimaryPhone
	s.Website = loc.WebsiteURI
	s.Category = loc.PrimaryCategory
	s.Latitude = loc.Latitude
	s.Longitude = loc.Longitude
	s.Verified = loc.Verified
}

// splitAddress prefers the structured parts and falls back to splitting the
// formatted line as "street, city, STATE POSTAL, country". Parts it cannot
// identify are left empty.
func splitAddress(a models.Address) (line, city, state, postal, country string) {
	var lines []string
	for _, l := range a.Lines {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	line = strings.Join(lines, ", ")
	city = strings.TrimSpace(a.Locality)
	state = strings.TrimSpace(a.Region)
	postal = strings.TrimSpace(a.PostalCode)
	country = strings.TrimSpace(a.Country)

	if (line != "" && city != "") || strings.TrimSpace(a.Formatted) == "" {
		return line, city, state, postal, country
	}

	parts := strings.Split(a.Formatted, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	pick := func(dst *string, i int) {
		if *dst == "" && i < len(parts) {
			*dst = parts[i]
		}
	}
	pick(&line, 0)
	pick(&city, 1)
	if len(parts) > 2 {
		fields := strings.Fields(parts[2])
		if state == "" && len(fields) > 0 {
			state = fields[0]
		}
		if postal == "" && len(fields) > 1 {
			postal = strings.Join(fields[1:], " ")
		}
	}
	pick(&country, 3)
	return line, city, state, postal, country
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return models.Unknown
	}
	return s
}

// Slugify lowercases s and drops every character that is not a letter or digit.
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func uniqueSlug(ctx context.Context, name, fallback string, exists func(context.Context, string) (bool, error)) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = fallback
	}
	return uniqueValue(ctx, base, "", exists)
}

// uniqueValue returns base, or base+sep+N for the smallest N >= 2 that is free.
func uniqueValue(ctx context.Context, base, sep string, exists func(context.Context, string) (bool, error)) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + sep + strconv.Itoa(n)
	}
}
