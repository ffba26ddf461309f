package ghttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

type RequestOption func(req *http.Request)

type HTTPClient struct {
	MaxRead int64
	client  *http.Client
}

var DefaultClient = NewHTTPClient(nil)

func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &HTTPClient{
		MaxRead: 10 * 1024 * 1024,
		client:  client,
	}
}

func WithHeader(key, value string) RequestOption {
	return func(req *http.Request) {
		if key == "" || value == "" {
			return
		}

		req.Header.Set(key, value)
	}
}

func (c *HTTPClient) DoGetJSON(ctx context.Context, url string, resObj interface{}, opts ...RequestOption) error {
	res, err := c.DoGet(ctx, url, opts...)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(res, resObj); err != nil {
		return NewError(-1, res, errors.WithStack(err))
	}
	return nil
}

func (c *HTTPClient) DoPostJSON(ctx context.Context, url string, reqObj interface{}, resObj interface{}, opts ...RequestOption) error {
	var body []byte
	var err error
	if reqObj != nil {
		body, err = json.Marshal(reqObj)
		if err != nil {
			return NewError(-1, nil, errors.WithStack(err))
		}
	}

	res, err := c.DoPost(ctx, url, body, append([]RequestOption{
		WithHeader("Content-Type", "application/json"),
	}, opts...)...)
	if err != nil {
		return err
	}

	if resObj == nil || res == nil {
		return nil
	}

	if err := json.Unmarshal(res, resObj); err != nil {
		return NewError(-1, res, errors.WithStack(err))
	}
	return nil
}

func (c *HTTPClient) DoGet(ctx context.Context, url string, opts ...RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewError(-1, nil, errors.WithStack(err))
	}
	return c.doReq(req, opts...)
}

func (c *HTTPClient) DoPost(ctx context.Context, url string, body []byte, opts ...RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(-1, nil, errors.WithStack(err))
	}
	return c.doReq(req, opts...)
}

func (c *HTTPClient) doReq(req *http.Request, opts ...RequestOption) ([]byte, error) {
	for _, opt := range opts {
		opt(req)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, NewError(-1, nil, errors.WithStack(err))
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	resBody, err := io.ReadAll(io.LimitReader(res.Body, c.MaxRead))
	if err != nil {
		return nil, NewError(-1, nil, errors.WithStack(err))
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, NewError(res.StatusCode, resBody, errors.Errorf("non-200 status code %d", res.StatusCode))
	}

	return resBody, nil
}
