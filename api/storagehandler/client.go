package storagehandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/storage-router/api"
	"github.com/ruteri/storage-router/interfaces"
)

// Client talks to the storage admin API.
type Client struct {
	// ServerAddr is the base URL of the router, e.g. "http://127.0.0.1:8080".
	ServerAddr string
	Client     *http.Client
}

// NewClient returns a client using http.DefaultClient.
func NewClient(serverAddr string) *Client {
	return &Client{
		ServerAddr: strings.TrimSuffix(serverAddr, "/"),
		Client:     http.DefaultClient,
	}
}

func (c *Client) ListPools(ctx context.Context) ([]interfaces.PoolInfo, error) {
	var infos api.PoolsResponse
	err := c.do(ctx, http.MethodGet, "/api/storage/pools", nil, "", &infos)
	return infos, err
}

func (c *Client) GetPool(ctx context.Context, pool string) (*interfaces.PoolInfo, error) {
	var info interfaces.PoolInfo
	if err := c.do(ctx, http.MethodGet, "/api/storage/pools/"+url.PathEscape(pool), nil, "", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// HealthCheck probes every pool, or only pool when it is not empty.
func (c *Client) HealthCheck(ctx context.Context, pool string) ([]interfaces.PoolInfo, error) {
	if pool == "" {
		var infos api.PoolsResponse
		err := c.do(ctx, http.MethodPost, "/api/storage/healthcheck", nil, "", &infos)
		return infos, err
	}

	var info interfaces.PoolInfo
	if err := c.do(ctx, http.MethodPost, "/api/storage/pools/"+url.PathEscape(pool)+"/healthcheck", nil, "", &info); err != nil {
		return nil, err
	}
	return []interfaces.PoolInfo{info}, nil
}

// RegisterPools replaces the server's pool table.
func (c *Client) RegisterPools(ctx context.Context, pools []interfaces.StoragePoolConfig) ([]string, error) {
	body, err := json.Marshal(pools)
	if err != nil {
		return nil, fmt.Errorf("could not marshal pools: %w", err)
	}

	var resp api.RegisterPoolsResponse
	if err := c.do(ctx, http.MethodPut, "/api/storage/pools", bytes.NewReader(body), "application/json", &resp); err != nil {
		return nil, err
	}
	return resp.Pools, nil
}

func (c *Client) Put(ctx context.Context, pool, key string, data []byte, contentType string) (*interfaces.PutResult, error) {
	var res interfaces.PutResult
	if err := c.do(ctx, http.MethodPut, objectPath(pool, "objects", key), bytes.NewReader(data), contentType, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Delete(ctx context.Context, pool, key string) (bool, error) {
	var res api.DeleteResponse
	if err := c.do(ctx, http.MethodDelete, objectPath(pool, "objects", key), nil, "", &res); err != nil {
		return false, err
	}
	return res.Deleted, nil
}

func (c *Client) Presign(ctx context.Context, pool string, req api.PresignRequest) (*interfaces.PresignResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not marshal presign request: %w", err)
	}

	var res interfaces.PresignResult
	if err := c.do(ctx, http.MethodPost, "/api/storage/pools/"+url.PathEscape(pool)+"/presign", bytes.NewReader(body), "application/json", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// URL resolves a public URL, or a signed one when signed is set or the pool is private.
func (c *Client) URL(ctx context.Context, pool, key string, signed bool, expiresIn time.Duration) (*api.URLResponse, error) {
	q := url.Values{}
	if signed {
		q.Set("signed", "true")
	}
	if expiresIn > 0 {
		q.Set("expires", expiresIn.String())
	}

	path := objectPath(pool, "url", key)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res api.URLResponse
	if err := c.do(ctx, http.MethodGet, path, nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func objectPath(pool, kind, key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("/api/storage/pools/%s/%s/%s", url.PathEscape(pool), kind, strings.Join(segments, "/"))
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.ServerAddr+path, body)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("could not request storage router: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &StatusError{Code: resp.StatusCode, Message: errResp.Error}
		}
		return &StatusError{Code: resp.StatusCode, Message: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage router returned error %d: %s", e.Code, e.Message)
}
