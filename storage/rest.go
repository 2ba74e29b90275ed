package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/storage-router/interfaces"
	"github.com/tidwall/gjson"
)

const (
	// FileKeyHeader carries the storage key on REST uploads.
	FileKeyHeader = "X-File-Key"

	// DefaultRestTimeout bounds every request made by the REST driver.
	DefaultRestTimeout = 30 * time.Second

	maxRestResponseSize = 1 << 20
)

// RestPaths are gjson paths used to pick fields out of REST responses,
// so differently shaped backends map onto the same results.
type RestPaths struct {
	Key       string
	URL       string
	UploadURL string
	Method    string
	Headers   string
	Fields    string
	PublicURL string
}

// DefaultRestPaths reads top-level fields named like the result fields.
func DefaultRestPaths() RestPaths {
	return RestPaths{
		Key:       "key",
		URL:       "url",
		UploadURL: "uploadUrl",
		Method:    "method",
		Headers:   "headers",
		Fields:    "fields",
		PublicURL: "publicUrl",
	}
}

// RestPathsFromOptions overrides the default paths with provider options
// (keyPath, urlPath, uploadUrlPath, methodPath, headersPath, fieldsPath, publicUrlPath).
func RestPathsFromOptions(cfg interfaces.StorageProviderConfig) RestPaths {
	def := DefaultRestPaths()
	return RestPaths{
		Key:       cfg.Option("keyPath", def.Key),
		URL:       cfg.Option("urlPath", def.URL),
		UploadURL: cfg.Option("uploadUrlPath", def.UploadURL),
		Method:    cfg.Option("methodPath", def.Method),
		Headers:   cfg.Option("headersPath", def.Headers),
		Fields:    cfg.Option("fieldsPath", def.Fields),
		PublicURL: cfg.Option("publicUrlPath", def.PublicURL),
	}
}

// RestDriver talks to a single generic HTTP upload endpoint.
type RestDriver struct {
	endpoint string
	headers  map[string]string
	paths    RestPaths
	client   *http.Client
	log      *slog.Logger
}

var (
	_ interfaces.Driver    = (*RestDriver)(nil)
	_ interfaces.Presigner = (*RestDriver)(nil)
)

// NewRestDriver creates a REST driver for endpoint. headers are attached to every request.
func NewRestDriver(endpoint string, headers map[string]string, paths RestPaths, timeout time.Duration, log *slog.Logger) (*RestDriver, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: empty REST endpoint", interfaces.ErrConfiguration)
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultRestTimeout
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout

	return &RestDriver{
		endpoint: endpoint,
		headers:  headers,
		paths:    paths,
		client:   client,
		log:      log,
	}, nil
}

// Put POSTs the raw bytes to the endpoint with the key in X-File-Key.
// A JSON response may rewrite the key and supply a URL.
func (d *RestDriver) Put(ctx context.Context, key string, data []byte, contentType string) (*interfaces.PutResult, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	d.setHeaders(req)
	req.Header.Set(FileKeyHeader, key)
	req.Header.Set("Content-Type", contentType)

	body, err := d.do(req)
	if err != nil {
		return nil, err
	}

	result := &interfaces.PutResult{Key: key}
	if gjson.ValidBytes(body) {
		if v := gjson.GetBytes(body, d.paths.Key); v.Exists() && v.String() != "" {
			result.Key = v.String()
		}
		if v := gjson.GetBytes(body, d.paths.URL); v.Exists() {
			result.URL = v.String()
		}
	}

	d.log.Debug("Stored blob via REST",
		slog.String("endpoint", d.endpoint),
		slog.String("key", result.Key),
		slog.Int("size", len(data)))

	return result, nil
}

type restPresignRequest struct {
	Key         string `json:"key"`
	Action      string `json:"action"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Presign asks the endpoint for upload instructions.
func (d *RestDriver) Presign(ctx context.Context, key string, opts interfaces.PresignOptions) (*interfaces.PresignResult, error) {
	payload, err := json.Marshal(restPresignRequest{
		Key:         key,
		Action:      "presign",
		ContentType: opts.ContentType,
		Size:        opts.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode presign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	d.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	body, err := d.do(req)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("presign response is not JSON")
	}

	uploadURL := gjson.GetBytes(body, d.paths.UploadURL).String()
	if uploadURL == "" {
		return nil, fmt.Errorf("presign response has no upload url at %q", d.paths.UploadURL)
	}

	method := strings.ToUpper(gjson.GetBytes(body, d.paths.Method).String())
	if method == "" {
		method = http.MethodPut
	}

	return &interfaces.PresignResult{
		Key:       key,
		UploadURL: uploadURL,
		Method:    method,
		Headers:   stringMap(gjson.GetBytes(body, d.paths.Headers)),
		Fields:    stringMap(gjson.GetBytes(body, d.paths.Fields)),
		PublicURL: gjson.GetBytes(body, d.paths.PublicURL).String(),
	}, nil
}

// Delete issues DELETE with the key in a JSON body. 404 counts as deleted.
func (d *RestDriver) Delete(ctx context.Context, key string) error {
	payload, err := json.Marshal(map[string]string{"key": key})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	d.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send delete request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRestResponseSize))

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode/100 == 2 {
		return nil
	}
	return fmt.Errorf("REST delete failed: %s", resp.Status)
}

// Health sends HEAD to the endpoint; any response below 500 means the endpoint is up.
func (d *RestDriver) Health(ctx context.Context) interfaces.HealthStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.endpoint, nil)
	if err != nil {
		return interfaces.Unhealthy(err)
	}
	d.setHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Debug("REST backend unavailable", slog.String("endpoint", d.endpoint), "err", err)
		return interfaces.Unhealthy(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return interfaces.HealthStatus{OK: false, Message: resp.Status}
	}
	return interfaces.Healthy()
}

func (d *RestDriver) setHeaders(req *http.Request) {
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
}

// do executes req and returns the body of a 2xx response.
func (d *RestDriver) do(req *http.Request) ([]byte, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRestResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("REST provider returned %s: %s", resp.Status, truncate(string(body), 256))
	}
	return body, nil
}

func stringMap(v gjson.Result) map[string]string {
	if !v.IsObject() {
		return nil
	}
	out := make(map[string]string)
	v.ForEach(func(k, val gjson.Result) bool {
		out[k.String()] = val.String()
		return true
	})
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
