// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package listing

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/listingsync/internal/models"
)

// locationReadMask lists the location fields requested from business information.
const locationReadMask = "name,title,storeCode,phoneNumbers,websiteUri,categories,storefrontAddress,latlng,metadata"

func (c *Client) pageSize(def int) string {
	if c.cfg.PageSize > 0 {
		return strconv.Itoa(c.cfg.PageSize)
	}
	return strconv.Itoa(def)
}

// ListAccounts returns every account the credentials can see.
func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var out []models.Account
	params := url.Values{"pageSize": {c.pageSize(20)}}
	err := c.paginate(ctx, "accounts", joinURL(c.cfg.AccountsURL, "v1", "accounts"), params,
		func(get pageDecoder) (string, error) {
			var page struct {
				Accounts      []wireAccount `json:"accounts"`
				NextPageToken string        `json:"nextPageToken"`
			}
			if err := get(&page); err != nil {
				return "", err
			}
			for _, a := range page.Accounts {
				out = append(out, a.normalize())
			}
			return page.NextPageToken, nil
		})
	return out, err
}

// ListLocations returns the locations of accountName ("accounts/X") with
// fully qualified names.
func (c *Client) ListLocations(ctx context.Context, accountName string) ([]models.Location, error) {
	var out []models.Location
	params := url.Values{
		"readMask": {locationReadMask},
		"pageSize": {c.pageSize(100)},
	}
	err := c.paginate(ctx, "locations", joinURL(c.cfg.BusinessInfoURL, "v1", accountName, "locations"), params,
		func(get pageDecoder) (string, error) {
			var page struct {
				Locations     []wireLocation `json:"locations"`
				NextPageToken string         `json:"nextPageToken"`
			}
			if err := get(&page); err != nil {
				return "", err
			}
			for _, l := range page.Locations {
				out = append(out, l.normalize(accountName))
			}
			return page.NextPageToken, nil
		})
	return out, err
}

// FetchReviews returns every review of the location.
func (c *Client) FetchReviews(ctx context.Context, ref models.LocationRef) ([]models.Review, error) {
	var out []models.Review
	params := url.Values{"pageSize": {c.pageSize(50)}}
	err := c.paginate(ctx, "reviews", joinURL(c.cfg.ReviewsURL, "v4", ref.String(), "reviews"), params,
		func(get pageDecoder) (string, error) {
			var page struct {
				Reviews       []wireReview `json:"reviews"`
				NextPageToken string       `json:"nextPageToken"`
			}
			if err := get(&page); err != nil {
				return "", err
			}
			for _, r := range page.Reviews {
				out = append(out, r.normalize())
			}
			return page.NextPageToken, nil
		})
	return out, err
}

// FetchPosts returns every local post of the location.
func (c *Client) FetchPosts(ctx context.Context, ref models.LocationRef) ([]models.Post, error) {
	var out []models.Post
	params := url.Values{"pageSize": {c.pageSize(100)}}
	err := c.paginate(ctx, "posts", joinURL(c.cfg.ReviewsURL, "v4", ref.String(), "localPosts"), params,
		func(get pageDecoder) (string, error) {
			var page struct {
				LocalPosts    []wirePost `json:"localPosts"`
				NextPageToken string     `json:"nextPageToken"`
			}
			if err := get(&page); err != nil {
				return "", err
			}
			for _, p := range page.LocalPosts {
				out = append(out, p.normalize())
			}
			return page.NextPageToken, nil
		})
	return out, err
}

// FetchInsights sums the daily metrics over [start, end]. It returns nil,
// nil when the API has no data for the location.
func (c *Client) FetchInsights(ctx context.Context, ref models.LocationRef, start, end time.Time) (*models.PerformanceSample, error) {
	params := url.Values{}
	for _, m := range dailyMetrics {
		params.Add("dailyMetrics", m.name)
	}
	setDate(params, "dailyRange.startDate", start)
	setDate(params, "dailyRange.endDate", end)

	reqURL := joinURL(c.cfg.PerformanceURL, "v1", "locations", ref.LocationID+":fetchMultiDailyMetricsTimeSeries") +
		"?" + params.Encode()

	var resp wireMetricsResponse
	if err := c.getJSON(ctx, "insights", reqURL, &resp); err != nil {
		return nil, err
	}
	return resp.normalize(start, end), nil
}

// FetchKeywords returns monthly search keyword impressions for each month
// from (fromYear, fromMonth) through (toYear, toMonth), one request series
// per month so each sample carries its own period.
func (c *Client) FetchKeywords(ctx context.Context, ref models.LocationRef, fromYear, fromMonth, toYear, toMonth int) ([]models.SearchKeywordSample, error) {
	var out []models.SearchKeywordSample
	base := joinURL(c.cfg.PerformanceURL, "v1", "locations", ref.LocationID, "searchkeywords", "impressions", "monthly")

	cur := time.Date(fromYear, time.Month(fromMonth), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(toYear, time.Month(toMonth), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(last) {
		year, month := cur.Year(), int(cur.Month())
		params := url.Values{
			"monthlyRange.startMonth.year":  {strconv.Itoa(year)},
			"monthlyRange.startMonth.month": {strconv.Itoa(month)},
			"monthlyRange.endMonth.year":    {strconv.Itoa(year)},
			"monthlyRange.endMonth.month":   {strconv.Itoa(month)},
			"pageSize":                      {c.pageSize(100)},
		}
		err := c.paginate(ctx, "keywords", base, params, func(get pageDecoder) (string, error) {
			var page wireKeywordsResponse
			if err := get(&page); err != nil {
				return "", err
			}
			out = append(out, page.normalize(year, month)...)
			return page.NextPageToken, nil
		})
		if err != nil {
			return nil, err
		}
		cur = cur.AddDate(0, 1, 0)
	}
	return out, nil
}

func setDate(params url.Values, prefix string, t time.Time) {
	params.Set(prefix+".year", strconv.Itoa(t.Year()))
	params.Set(prefix+".month", strconv.Itoa(int(t.Month())))
	params.Set(prefix+".day", strconv.Itoa(t.Day()))
}
