package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hyperjump/utsushi/internal/models"
	"github.com/hyperjump/utsushi/internal/server"
)

// errServerUnavailable marks transport failures, as opposed to error responses.
// Commands fall back to direct storage access on it.
var errServerUnavailable = errors.New("server unavailable")

// apiClient talks to a running utsushi server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, http: &http.Client{Timeout: 60 * time.Second}}
}

func (c *apiClient) do(method, path string, body interface{}, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errServerUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) textSearch(q *models.SearchQuery) (*models.SearchResponse, error) {
	var resp models.SearchResponse
	if err := c.do(http.MethodPost, "/api/v1/search/text", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) imageSearch(q *models.SearchQuery) (*models.SearchResponse, error) {
	var resp models.SearchResponse
	if err := c.do(http.MethodPost, "/api/v1/search/image", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) nameSearch(q string, limit int) (*models.SearchResponse, error) {
	v := url.Values{"q": {q}, "limit": {strconv.Itoa(limit)}}
	var resp models.SearchResponse
	if err := c.do(http.MethodGet, "/api/v1/search/name?"+v.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) status() (*server.StatusReport, error) {
	var report server.StatusReport
	if err := c.do(http.MethodGet, "/api/v1/status", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *apiClient) folders() ([]*models.IndexedFolder, error) {
	var out struct {
		Folders []*models.IndexedFolder `json:"folders"`
	}
	if err := c.do(http.MethodGet, "/api/v1/folders", nil, &out); err != nil {
		return nil, err
	}
	return out.Folders, nil
}
