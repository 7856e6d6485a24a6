package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type HTTPConfig struct {
	// Endpoint is the storage service base URL; records live at
	// {Endpoint}/players/{player_id}/{key}.
	Endpoint    string
	Token       string
	HTTPTimeout time.Duration
	// Attempts bounds retries of transport errors and 5xx responses.
	Attempts int
}

// HTTP talks to a remote per-player storage service. GET returning 404 means
// the record is absent.
type HTTP struct {
	cfg        HTTPConfig
	httpClient *http.Client
}

const maxRecordBytes = 64 * 1024

func OpenHTTP(cfg HTTPConfig) (*HTTP, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty storage endpoint")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("storage endpoint: %w", err)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	return &HTTP{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

func (h *HTTP) recordURL(playerID, key string) string {
	return h.cfg.Endpoint + "/players/" + url.PathEscape(playerID) + "/" + url.PathEscape(key)
}

func (h *HTTP) Get(ctx context.Context, playerID, key string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := h.do(ctx, http.MethodGet, h.recordURL(playerID, key), nil, func(resp *http.Response) error {
		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordBytes))
		if err != nil {
			return err
		}
		out, found = b, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

func (h *HTTP) Set(ctx context.Context, playerID, key string, value []byte) error {
	return h.do(ctx, http.MethodPut, h.recordURL(playerID, key), value, func(*http.Response) error { return nil })
}

// do runs one request with retries. onOK sees every 2xx response and 404.
func (h *HTTP) do(ctx context.Context, method, u string, body []byte, onOK func(*http.Response) error) error {
	var lastErr error
	for attempt := 0; attempt < h.cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(100*(1<<(attempt-1))) * time.Millisecond):
			}
		}
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("content-type", "application/json")
		}
		if h.cfg.Token != "" {
			req.Header.Set("authorization", "Bearer "+h.cfg.Token)
		}

		resp, err := h.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusNotFound {
			err = onOK(resp)
			_ = resp.Body.Close()
			return err
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		_ = resp.Body.Close()
		lastErr = fmt.Errorf("%s %s: status=%d body=%s", method, u, resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}
