// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"context"
	"fmt"
	"net/url"
)

// CreatePreview starts a personalization render.
func (c *Client) CreatePreview(ctx context.Context, req CreatePreviewRequest) (*RenderJob, error) {
	var job RenderJob
	if err := c.post(ctx, "/renders/previews", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches the current state of a render job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*RenderJob, error) {
	if jobID == "" {
		return nil, fmt.Errorf("backend: get job: empty job id")
	}
	var job RenderJob
	if err := c.get(ctx, "/renders/"+url.PathEscape(jobID), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ResolveExperience fetches the AR configuration for a book.
func (c *Client) ResolveExperience(ctx context.Context, bookID string) (*ArExperience, error) {
	var exp ArExperience
	if err := c.get(ctx, "/ar/resolve?bookId="+url.QueryEscape(bookID), &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

// LogEvent delivers a single AR analytics event.
func (c *Client) LogEvent(ctx context.Context, event ArEvent) error {
	return c.post(ctx, "/ar/events", event, nil)
}

// LogEvents delivers a batch of AR analytics events.
func (c *Client) LogEvents(ctx context.Context, events []ArEvent) error {
	return c.post(ctx, "/ar/events/batch", ArEventBatch{Events: events}, nil)
}

// GetLibrary lists the books the user has unlocked.
func (c *Client) GetLibrary(ctx context.Context) (*LibraryResponse, error) {
	var lib LibraryResponse
	if err := c.get(ctx, "/library", &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

// MarkViewed records that the user opened a book.
func (c *Client) MarkViewed(ctx context.Context, bookID string) error {
	return c.post(ctx, "/library/"+url.PathEscape(bookID)+"/viewed", nil, nil)
}

// UnlockBook adds a scanned book to the user's library.
func (c *Client) UnlockBook(ctx context.Context, bookID string) (*LibraryBook, error) {
	var book LibraryBook
	if err := c.post(ctx, "/library/"+url.PathEscape(bookID)+"/unlock", nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}
