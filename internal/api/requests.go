// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import (
	"time"

	"github.com/tomtom215/listingsync/internal/models"
	syncpkg "github.com/tomtom215/listingsync/internal/sync"
)

// maxRequestBody bounds the StartSync request body.
const maxRequestBody = 64 * 1024

// StartSyncRequest is the body of POST /api/v1/sync.
type StartSyncRequest struct {
	AccessToken  string `json:"access_token" validate:"required,max=4096"`
	RefreshToken string `json:"refresh_token,omitempty" validate:"omitempty,max=4096"`
	// ExpiresIn is the remaining access token lifetime in seconds.
	ExpiresIn int    `json:"expires_in,omitempty" validate:"omitempty,min=1"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	// AccountName restricts the run to one account (accounts/{id}).
	AccountName            string `json:"account_name,omitempty" validate:"omitempty,account_name"`
	MaxConcurrentLocations int    `json:"max_concurrent_locations,omitempty" validate:"omitempty,gte=1,lte=50"`
	ResumeRunID            string `json:"resume_run_id,omitempty" validate:"omitempty,uuid4"`
}

// toStartRequest converts the body into the manager's request.
func (r *StartSyncRequest) toStartRequest(now time.Time) syncpkg.StartRequest {
	creds := models.Credentials{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Email:        r.Email,
	}
	if r.ExpiresIn > 0 {
		creds.Expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return syncpkg.StartRequest{
		Credentials:            creds,
		AccountName:            r.AccountName,
		MaxConcurrentLocations: r.MaxConcurrentLocations,
		ResumeRunID:            r.ResumeRunID,
	}
}

// StartSyncResponse is returned by an asynchronous start.
type StartSyncResponse struct {
	RunID string `json:"run_id"`
}
