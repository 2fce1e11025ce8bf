// Package client submits capture evidence to a verification service and
// selects the offline fallback path when the service is unreachable.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/mhlotto/go-photoproof/photoproof"
)

// Client calls a photoproof verification server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

// Submit posts a CBOR submission to /verifications and decodes the
// verification result. Any transport or protocol failure is returned to the
// caller, which decides whether to fall back offline.
func (c *Client) Submit(ctx context.Context, sub photoproof.Submission) (photoproof.VerificationResult, error) {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	payload, err := cbor.Marshal(sub)
	if err != nil {
		return photoproof.VerificationResult{}, fmt.Errorf("encode submission: %w", err)
	}

	endpoint := strings.TrimSuffix(c.BaseURL, "/") + "/verifications"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return photoproof.VerificationResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/photoproof-submission+cbor")
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return photoproof.VerificationResult{}, fmt.Errorf("POST verifications: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return photoproof.VerificationResult{}, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result photoproof.VerificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return photoproof.VerificationResult{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

// FetchResult retrieves a previously produced result by ID.
func (c *Client) FetchResult(ctx context.Context, id string) (photoproof.VerificationResult, error) {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	endpoint := strings.TrimSuffix(c.BaseURL, "/") + "/verifications/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return photoproof.VerificationResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return photoproof.VerificationResult{}, fmt.Errorf("GET verifications/%s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return photoproof.VerificationResult{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var result photoproof.VerificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return photoproof.VerificationResult{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}
