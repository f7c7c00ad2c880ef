package syncagent

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

	"listsync/internal/models"
)

// ErrListNotFound is returned by FetchList for unknown slugs.
var ErrListNotFound = errors.New("list not found")

// APIClient talks to the list CRUD endpoints. The agent uses it as its
// Fetcher; the CLI also uses it to create lists and items.
type APIClient struct {
	BaseURL  string
	Password string // sent as X-List-Password when set
	client   *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchList loads the full list state by slug.
func (c *APIClient) FetchList(ctx context.Context, slug string) (*models.ListWithItems, error) {
	var full models.ListWithItems
	err := c.do(ctx, http.MethodGet, "/api/lists/"+url.PathEscape(slug), nil, http.StatusOK, &full)
	if err != nil {
		return nil, err
	}
	return &full, nil
}

func (c *APIClient) CreateList(ctx context.Context, in *models.ListCreate) (*models.List, error) {
	var list models.List
	if err := c.do(ctx, http.MethodPost, "/api/lists", in, http.StatusCreated, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *APIClient) UpdateList(ctx context.Context, listID uint, patch *models.ListPatch) (*models.List, error) {
	var list models.List
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/lists/%d", listID), patch, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *APIClient) AddItem(ctx context.Context, listID uint, in *models.ItemCreate) (*models.ListItem, error) {
	var item models.ListItem
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/lists/%d/items", listID), in, http.StatusCreated, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *APIClient) UpdateItem(ctx context.Context, itemID uint, patch *models.ItemPatch) (*models.ListItem, error) {
	var item models.ListItem
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/items/%d", itemID), patch, http.StatusOK, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *APIClient) DeleteItem(ctx context.Context, itemID uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/items/%d", itemID), nil, http.StatusNoContent, nil)
}

func (c *APIClient) ReorderItems(ctx context.Context, orders []models.ItemOrder) error {
	body := struct {
		Updates []models.ItemOrder `json:"updates"`
	}{Updates: orders}
	return c.do(ctx, http.MethodPost, "/api/items/reorder", body, http.StatusNoContent, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		reqBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Password != "" {
		req.Header.Set("X-List-Password", c.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return ErrListNotFound
	}
	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
