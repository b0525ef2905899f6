// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
normalize.go - Response Normalization

The listing API has shipped several shapes for the same data across versions
(websiteUri vs websiteUrl, title vs locationName, storefrontAddress vs address,
short "locations/Y" names vs full "accounts/X/locations/Y" names, numeric vs
string metric values). Raw payloads are decoded into the wire structs below
and normalized once, here, so nothing downstream sees the alternates.
*/

//nolint:staticcheck // File documentation, not package doc
package listing

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/listingsync/internal/models"
)

// flexInt accepts 12, "12", "" and null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

type wireAccount struct {
	Name        string `json:"name"`
	AccountName string `json:"accountName"`
	Type        string `json:"type"`
	Role        string `json:"role"`
}

func (w wireAccount) normalize() models.Account {
	return models.Account{
		Name:        w.Name,
		DisplayName: w.AccountName,
		Type:        w.Type,
		Role:        w.Role,
	}
}

type wireAddress struct {
	AddressLines       []string `json:"addressLines"`
	Locality           string   `json:"locality"`
	AdministrativeArea string   `json:"administrativeArea"`
	PostalCode         string   `json:"postalCode"`
	RegionCode         string   `json:"regionCode"`
}

type wireLocation struct {
	Name         string `json:"name"`
	Title        string `json:"title"`
	LocationName string `json:"locationName"`
	StoreCode    string `json:"storeCode"`
	PhoneNumbers *struct {
		PrimaryPhone string `json:"primaryPhone"`
	} `json:"phoneNumbers"`
	PrimaryPhone string `json:"primaryPhone"`
	WebsiteURI   string `json:"websiteUri"`
	WebsiteURL   string `json:"websiteUrl"`
	Categories   *struct {
		PrimaryCategory *struct {
			DisplayName string `json:"displayName"`
		} `json:"primaryCategory"`
	} `json:"categories"`
	PrimaryCategory *struct {
		DisplayName string `json:"displayName"`
	} `json:"primaryCategory"`
	StorefrontAddress *wireAddress `json:"storefrontAddress"`
	Address           *wireAddress `json:"address"`
	FormattedAddress  string       `json:"formattedAddress"`
	Latlng            *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"latlng"`
	Metadata *struct {
		HasVoiceOfMerchant bool `json:"hasVoiceOfMerchant"`
	} `json:"metadata"`
}

// normalize maps a wire location onto the model, qualifying short
// "locations/Y" names with the owning account.
func (w wireLocation) normalize(accountName string) models.Location {
	loc := models.Location{
		Name:       qualifyLocationName(accountName, w.Name),
		Title:      firstNonEmpty(w.Title, w.LocationName),
		StoreCode:  w.StoreCode,
		WebsiteURI: firstNonEmpty(w.WebsiteURI, w.WebsiteURL),
	}
	if w.PhoneNumbers != nil {
		loc.PrimaryPhone = w.PhoneNumbers.PrimaryPhone
	}
	if loc.PrimaryPhone == "" {
		loc.PrimaryPhone = w.PrimaryPhone
	}
	switch {
	case w.Categories != nil && w.Categories.PrimaryCategory != nil:
		loc.PrimaryCategory = w.Categories.PrimaryCategory.DisplayName
	case w.PrimaryCategory != nil:
		loc.PrimaryCategory = w.PrimaryCategory.DisplayName
	}

	addr := w.StorefrontAddress
	if addr == nil {
		addr = w.Address
	}
	if addr != nil {
		loc.Address = models.Address{
			Lines:      addr.AddressLines,
			Locality:   addr.Locality,
			Region:     addr.AdministrativeArea,
			PostalCode: addr.PostalCode,
			Country:    addr.RegionCode,
		}
	}
	loc.Address.Formatted = w.FormattedAddress
	if loc.Address.Formatted == "" && addr != nil {
		loc.Address.Formatted = formatAddress(loc.Address)
	}

	if w.Latlng != nil {
		loc.Latitude = w.Latlng.Latitude
		loc.Longitude = w.Latlng.Longitude
	}
	if w.Metadata != nil {
		loc.Verified = w.Metadata.HasVoiceOfMerchant
	}
	return loc
}

// qualifyLocationName turns "locations/Y" into "accounts/X/locations/Y".
// Names that already carry an account are returned unchanged.
func qualifyLocationName(accountName, name string) string {
	if strings.HasPrefix(name, "locations/") && accountName != "" {
		return accountName + "/" + name
	}
	return name
}

func formatAddress(a models.Address) string {
	parts := make([]string, 0, len(a.Lines)+4)
	for _, l := range a.Lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	for _, p := range []string{a.Locality, strings.TrimSpace(a.Region + " " + a.PostalCode), a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type wireReview struct {
	Name     string `json:"name"`
	ReviewID string `json:"reviewId"`
	Reviewer struct {
		DisplayName string `json:"displayName"`
	} `json:"reviewer"`
	StarRating  string `json:"starRating"`
	Comment     string `json:"comment"`
	CreateTime  string `json:"createTime"`
	UpdateTime  string `json:"updateTime"`
	ReviewReply *struct {
		Comment    string `json:"comment"`
		UpdateTime string `json:"updateTime"`
	} `json:"reviewReply"`
}

var starRatings = map[string]int{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

// starRating maps ONE..FIVE (or a digit) to 1..5; anything else is 0.
func starRating(s string) int {
	if n, ok := starRatings[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return n
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 5 {
		return n
	}
	return 0
}

func (w wireReview) normalize() models.Review {
	r := models.Review{
		ReviewID:     firstNonEmpty(w.ReviewID, lastSegment(w.Name)),
		ReviewerName: w.Reviewer.DisplayName,
		StarRating:   starRating(w.StarRating),
		Comment:      w.Comment,
		CreateTime:   parseTime(w.CreateTime),
		UpdateTime:   parseTime(w.UpdateTime),
	}
	if w.ReviewReply != nil {
		r.ReplyComment = w.ReviewReply.Comment
		if t := parseTime(w.ReviewReply.UpdateTime); !t.IsZero() {
			r.ReplyTime = &t
		}
	}
	return r
}

type wirePost struct {
	Name         string `json:"name"`
	TopicType    string `json:"topicType"`
	Summary      string `json:"summary"`
	State        string `json:"state"`
	SearchURL    string `json:"searchUrl"`
	CreateTime   string `json:"createTime"`
	UpdateTime   string `json:"updateTime"`
	CallToAction *struct {
		ActionType string `json:"actionType"`
		URL        string `json:"url"`
	} `json:"callToAction"`
	Media []struct {
		GoogleURL string `json:"googleUrl"`
		SourceURL string `json:"sourceUrl"`
	} `json:"media"`
}

func (w wirePost) normalize() models.Post {
	p := models.Post{
		PostID:     lastSegment(w.Name),
		TopicType:  w.TopicType,
		Summary:    w.Summary,
		State:      w.State,
		SearchURL:  w.SearchURL,
		CreateTime: parseTime(w.CreateTime),
		UpdateTime: parseTime(w.UpdateTime),
	}
	if w.CallToAction != nil {
		p.CallToAction = w.CallToAction.ActionType
		p.CallToActionURL = w.CallToAction.URL
	}
	if len(w.Media) > 0 {
		p.MediaURL = firstNonEmpty(w.Media[0].GoogleURL, w.Media[0].SourceURL)
	}
	return p
}

type wireDatedValue struct {
	Value *flexInt `json:"value"`
}

type wireMetricsResponse struct {
	MultiDailyMetricTimeSeries []struct {
		DailyMetricTimeSeries []struct {
			DailyMetric string `json:"dailyMetric"`
			TimeSeries  struct {
				DatedValues []wireDatedValue `json:"datedValues"`
			} `json:"timeSeries"`
		} `json:"dailyMetricTimeSeries"`
	} `json:"multiDailyMetricTimeSeries"`
}

// dailyMetrics lists the requested metrics and where each one lands.
var dailyMetrics = []struct {
	name  string
	field func(*models.PerformanceSample) *int64
}{
	{"BUSINESS_IMPRESSIONS_DESKTOP_MAPS", func(s *models.PerformanceSample) *int64 { return &s.DesktopMapsImpressions }},
	{"BUSINESS_IMPRESSIONS_DESKTOP_SEARCH", func(s *models.PerformanceSample) *int64 { return &s.DesktopSearchImpressions }},
	{"BUSINESS_IMPRESSIONS_MOBILE_MAPS", func(s *models.PerformanceSample) *int64 { return &s.MobileMapsImpressions }},
	{"BUSINESS_IMPRESSIONS_MOBILE_SEARCH", func(s *models.PerformanceSample) *int64 { return &s.MobileSearchImpressions }},
	{"CALL_CLICKS", func(s *models.PerformanceSample) *int64 { return &s.CallClicks }},
	{"WEBSITE_CLICKS", func(s *models.PerformanceSample) *int64 { return &s.WebsiteClicks }},
	{"BUSINESS_DIRECTION_REQUESTS", func(s *models.PerformanceSample) *int64 { return &s.DirectionRequests }},
	{"BUSINESS_CONVERSATIONS", func(s *models.PerformanceSample) *int64 { return &s.Conversations }},
	{"BUSINESS_BOOKINGS", func(s *models.PerformanceSample) *int64 { return &s.BookingClicks }},
	{"BUSINESS_FOOD_ORDERS", func(s *models.PerformanceSample) *int64 { return &s.FoodOrders }},
}

// normalize sums every daily series. It returns nil when the response
// carries no dated values at all, which the API does for new or
// unverified locations.
func (w wireMetricsResponse) normalize(start, end time.Time) *models.PerformanceSample {
	fields := make(map[string]func(*models.PerformanceSample) *int64, len(dailyMetrics))
	for _, m := range dailyMetrics {
		fields[m.name] = m.field
	}

	sample := &models.PerformanceSample{PeriodStart: start, PeriodEnd: end}
	seen := false
	for _, multi := range w.MultiDailyMetricTimeSeries {
		for _, series := range multi.DailyMetricTimeSeries {
			field, ok := fields[series.DailyMetric]
			if !ok {
				continue
			}
			for _, dv := range series.TimeSeries.DatedValues {
				seen = true
				if dv.Value != nil {
					*field(sample) += int64(*dv.Value)
				}
			}
		}
	}
	if !seen {
		return nil
	}
	sample.ComputeDerived()
	return sample
}

type wireKeywordsResponse struct {
	SearchKeywordsCounts []struct {
		SearchKeyword string `json:"searchKeyword"`
		InsightsValue struct {
			Value     *flexInt `json:"value"`
			Threshold *flexInt `json:"threshold"`
		} `json:"insightsValue"`
	} `json:"searchKeywordsCounts"`
	NextPageToken string `json:"nextPageToken"`
}

// normalize keeps exact counts as-is and records thresholded counts as the
// threshold value with BelowThreshold set.
func (w wireKeywordsResponse) normalize(year, month int) []models.SearchKeywordSample {
	out := make([]models.SearchKeywordSample, 0, len(w.SearchKeywordsCounts))
	for _, kc := range w.SearchKeywordsCounts {
		kw := strings.TrimSpace(kc.SearchKeyword)
		if kw == "" {
			continue
		}
		s := models.SearchKeywordSample{Keyword: kw, Year: year, Month: month}
		switch {
		case kc.InsightsValue.Value != nil:
			s.Impressions = int64(*kc.InsightsValue.Value)
		case kc.InsightsValue.Threshold != nil:
			s.Impressions = int64(*kc.InsightsValue.Threshold)
			s.BelowThreshold = true
		}
		out = append(out, s)
	}
	return out
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
