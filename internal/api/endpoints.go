package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CheckKey validates the API key against the gateway.
func (c *Client) CheckKey(ctx context.Context) error {
	var result struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/check-key", nil, &result, ResourceNone); err != nil {
		return err
	}
	if !result.OK {
		return ErrInvalidAPIKey
	}
	return nil
}

// GetServerInfo fetches the gateway configuration.
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	var result ServerInfo
	if err := c.do(ctx, http.MethodGet, "/api/server-info", nil, &result, ResourceNone); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateInbox registers a new inbox.
func (c *Client) CreateInbox(ctx context.Context, req *CreateInboxRequest) (*CreateInboxResponse, error) {
	var result CreateInboxResponse
	if err := c.do(ctx, http.MethodPost, "/api/inboxes", req, &result, ResourceInbox); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteInbox deletes an inbox and all of its emails.
func (c *Client) DeleteInbox(ctx context.Context, emailAddress string) error {
	path := "/api/inboxes/" + url.PathEscape(emailAddress)
	return c.do(ctx, http.MethodDelete, path, nil, nil, ResourceInbox)
}

// DeleteAllInboxes deletes every inbox owned by the API key and
// returns how many were removed.
func (c *Client) DeleteAllInboxes(ctx context.Context) (int, error) {
	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/inboxes", nil, &result, ResourceNone); err != nil {
		return 0, err
	}
	return result.Deleted, nil
}

// GetSyncStatus fetches the inbox's change-detection fingerprint.
func (c *Client) GetSyncStatus(ctx context.Context, emailAddress string) (*SyncStatus, error) {
	path := fmt.Sprintf("/api/inboxes/%s/sync", url.PathEscape(emailAddress))
	var result SyncStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &result, ResourceInbox); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListEmails fetches every email in an inbox with full content
// envelopes.
func (c *Client) ListEmails(ctx context.Context, emailAddress string) ([]*EmailEnvelope, error) {
	path := fmt.Sprintf("/api/inboxes/%s/emails", url.PathEscape(emailAddress))
	var result EmailListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &result, ResourceInbox); err != nil {
		return nil, err
	}
	return result.Emails, nil
}

// ListEmailMetadata fetches the metadata-only listing of an inbox.
func (c *Client) ListEmailMetadata(ctx context.Context, emailAddress string) ([]*EmailMetadataEntry, error) {
	path := fmt.Sprintf("/api/inboxes/%s/emails?metadata=only", url.PathEscape(emailAddress))
	var result EmailMetadataListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &result, ResourceInbox); err != nil {
		return nil, err
	}
	return result.Emails, nil
}

// GetEmail fetches a single email with full content envelopes.
func (c *Client) GetEmail(ctx context.Context, emailAddress, emailID string) (*EmailEnvelope, error) {
	path := fmt.Sprintf("/api/inboxes/%s/emails/%s",
		url.PathEscape(emailAddress), url.PathEscape(emailID))
	var result EmailEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &result, ResourceEmail); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRawEmail fetches the raw RFC 5322 source envelope of an email.
func (c *Client) GetRawEmail(ctx context.Context, emailAddress, emailID string) (*RawEmailResponse, error) {
	path := fmt.Sprintf("/api/inboxes/%s/emails/%s/raw",
		url.PathEscape(emailAddress), url.PathEscape(emailID))
	var result RawEmailResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &result, ResourceEmail); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkEmailRead marks an email as read.
func (c *Client) MarkEmailRead(ctx context.Context, emailAddress, emailID string) error {
	path := fmt.Sprintf("/api/inboxes/%s/emails/%s/read",
		url.PathEscape(emailAddress), url.PathEscape(emailID))
	return c.do(ctx, http.MethodPatch, path, nil, nil, ResourceEmail)
}

// DeleteEmail deletes a single email.
func (c *Client) DeleteEmail(ctx context.Context, emailAddress, emailID string) error {
	path := fmt.Sprintf("/api/inboxes/%s/emails/%s",
		url.PathEscape(emailAddress), url.PathEscape(emailID))
	return c.do(ctx, http.MethodDelete, path, nil, nil, ResourceEmail)
}

// OpenEventStream opens the long-lived SSE connection for the given
// inbox hashes. lastEventID, when non-empty, is sent as Last-Event-ID
// so a gateway that supports resumption can replay missed frames; the
// client still reconciles after every reconnect and does not depend on
// replay.
//
// The caller owns the response body and must close it.
func (c *Client) OpenEventStream(ctx context.Context, inboxHashes []string, lastEventID string) (*http.Response, error) {
	path := "/api/events?inboxes=" + url.QueryEscape(strings.Join(inboxHashes, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	// The stream outlives any per-request timeout configured on the
	// regular client.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := parseErrorResponse(resp, ResourceNone)
		resp.Body.Close()
		return nil, apiErr
	}
	return resp, nil
}
