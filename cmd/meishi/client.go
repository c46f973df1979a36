package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/meishi/internal/models"
)

// errNotFound is returned by apiClient when the server answers 404.
var errNotFound = errors.New("not found")

// apiClient talks to a running meishi server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && out != nil {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = resp.Status
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, errBody.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	var resp models.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/search", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Lookup(ctx context.Context, query *models.LookupQuery) (*models.LookupResponse, error) {
	var resp models.LookupResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/lookup", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindCard returns the card, or a not-found record when the server has no such card.
func (c *apiClient) FindCard(ctx context.Context, identity string) (*models.CardRecord, error) {
	var card models.CardRecord
	err := c.do(ctx, http.MethodGet, "/api/v1/cards/"+url.PathEscape(identity), nil, &card)
	if errors.Is(err, errNotFound) {
		return models.NotFoundCard(identity), nil
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (c *apiClient) Stats(ctx context.Context) (*models.IndexStats, error) {
	var resp struct {
		Index models.IndexStats `json:"index"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Index, nil
}

func (c *apiClient) InboxList(ctx context.Context) ([]string, error) {
	var resp struct {
		Directories []string `json:"directories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/inbox", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Directories, nil
}

func (c *apiClient) InboxAdd(ctx context.Context, path string, sync bool) error {
	body := map[string]interface{}{"path": path, "sync": sync}
	return c.do(ctx, http.MethodPost, "/api/v1/inbox", body, nil)
}

func (c *apiClient) InboxRemove(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/inbox?path="+url.QueryEscape(path), nil, nil)
}
