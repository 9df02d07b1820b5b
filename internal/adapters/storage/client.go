// Package storage talks to the external media host that keeps certificate
// and avatar files. The host is a black box; only upload, delete and
// signed-URL issuance are used.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Client interface {
	Upload(ctx context.Context, folder, filename string, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
	SignedURL(ctx context.Context, url string, ttl time.Duration) (string, error)
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) Client {
	return &httpClient{baseURL: baseURL, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func (c *httpClient) Upload(ctx context.Context, folder, filename string, data []byte) (string, error) {
	payload := map[string]interface{}{
		"folder":   folder,
		"filename": filename,
		"content":  base64.StdEncoding.EncodeToString(data),
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/v1/files", payload, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *httpClient) Delete(ctx context.Context, url string) error {
	payload := map[string]interface{}{"url": url}
	return c.post(ctx, "/v1/files/delete", payload, nil)
}

func (c *httpClient) SignedURL(ctx context.Context, url string, ttl time.Duration) (string, error) {
	payload := map[string]interface{}{"url": url, "ttl_seconds": int64(ttl.Seconds())}
	var resp struct {
		SignedURL string `json:"signed_url"`
	}
	if err := c.post(ctx, "/v1/files/sign", payload, &resp); err != nil {
		return "", err
	}
	return resp.SignedURL, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	op := func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.baseURL, path), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		res, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode >= 500 {
			return fmt.Errorf("media host error: %d", res.StatusCode)
		}
		if res.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("media host rejected request: %d", res.StatusCode))
		}
		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				return backoff.Permanent(err)
			}
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
