package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"greeks-dashboard/internal/errors"
	"greeks-dashboard/internal/models"
)

// Backend endpoints.
const (
	PathGreeks   = "/api/greeks"
	PathExpiries = "/api/expiries"
)

// FetchSamples returns the raw samples for one (date, index, expiry, source) selection.
func (c *Client) FetchSamples(ctx context.Context, q models.SeriesQuery) ([]models.RawSample, error) {
	params := url.Values{}
	params.Set("date", q.DateString())
	params.Set("index", string(q.Index))
	if q.Expiry != "" {
		params.Set("expiry", q.Expiry)
	}
	if q.Source != "" {
		params.Set("source", string(q.Source))
	}

	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: PathGreeks, query: params}, &raw); err != nil {
		return nil, err
	}
	return decodeList[models.RawSample](raw, PathGreeks, "data", "samples")
}

// ListExpiries returns the expiry symbols the backend publishes for index.
func (c *Client) ListExpiries(ctx context.Context, index models.Index) ([]string, error) {
	params := url.Values{}
	params.Set("index", string(index))

	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: PathExpiries, query: params}, &raw); err != nil {
		return nil, err
	}
	return decodeList[string](raw, PathExpiries, "data", "expiries")
}

// Ping checks the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodGet, path: PathHealth}, nil)
}

// decodeList accepts a bare JSON array or an object wrapping it under one of keys.
// null and empty bodies decode to an empty list.
func decodeList[T any](raw json.RawMessage, path string, keys ...string) ([]T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []T{}, nil
	}

	var list []T
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errors.NewDataError("response", path, "decode list", err)
		}
		return list, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.NewDataError("response", path, "decode envelope", err)
	}
	for _, k := range keys {
		inner, ok := envelope[k]
		if !ok {
			continue
		}
		return decodeList[T](inner, path)
	}
	return nil, errors.NewDataError("response", path, "no list in response", nil)
}
