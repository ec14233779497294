// Package cloudant implements core/store.Store over the Cloudant/CouchDB
// HTTP API.
package cloudant

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

	"github.com/resqmeals/gateway/auth"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/logger"
	"github.com/resqmeals/gateway/core/store"
)

// Config holds the Cloudant endpoint settings.
type Config struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Client talks to one Cloudant account. Collections map to databases.
type Client struct {
	baseURL string
	tokens  auth.Provider
	http    *http.Client
	log     logger.Logger
}

// New builds a client. The base URL is checked on every call so a gateway
// without store configuration still starts.
func New(cfg Config, tokens auth.Provider, log logger.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if tokens == nil {
		tokens = auth.StaticProvider("")
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type findRequest struct {
	Selector store.Selector `json:"selector"`
	Limit    int            `json:"limit"`
	Fields   []string       `json:"fields,omitempty"`
}

type findResponse struct {
	Docs    []store.Doc `json:"docs"`
	Warning string      `json:"warning,omitempty"`
}

// Find runs a Mango query against the collection database.
func (c *Client) Find(ctx context.Context, collection string, sel store.Selector, limit int, fields ...string) ([]store.Doc, error) {
	if sel == nil {
		sel = store.Selector{}
	}
	body, err := json.Marshal(findRequest{Selector: sel, Limit: limit, Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("marshal selector: %w", err)
	}
	status, data, err := c.do(ctx, http.MethodPost, dbPath(collection)+"/_find", body)
	if err != nil {
		return nil, err
	}
	if err := statusError("find "+collection, status, data); err != nil {
		return nil, err
	}
	var resp findResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fault.Newf(fault.ErrTransport, "find "+collection, "decode response: %v", err)
	}
	if resp.Warning != "" {
		c.log.Debugf("find %s: %s", collection, resp.Warning)
	}
	if resp.Docs == nil {
		resp.Docs = []store.Doc{}
	}
	return resp.Docs, nil
}

// Get fetches one document by id.
func (c *Client) Get(ctx context.Context, collection, id string) (store.Doc, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fault.Newf(fault.ErrValidation, "get "+collection, "id is required")
	}
	status, data, err := c.do(ctx, http.MethodGet, docPath(collection, id), nil)
	if err != nil {
		return nil, err
	}
	if err := statusError("get "+collection+"/"+id, status, data); err != nil {
		return nil, err
	}
	var doc store.Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fault.Newf(fault.ErrTransport, "get "+collection, "decode response: %v", err)
	}
	return doc, nil
}

// Put writes doc under its _id.
func (c *Client) Put(ctx context.Context, collection string, doc any) (store.Ack, error) {
	d, err := store.ToDoc(doc)
	if err != nil {
		return store.Ack{}, err
	}
	id, err := store.DocID(d)
	if err != nil {
		return store.Ack{}, err
	}
	body, err := json.Marshal(d)
	if err != nil {
		return store.Ack{}, fault.New(fault.ErrValidation, "put", err)
	}
	status, data, err := c.do(ctx, http.MethodPut, docPath(collection, id), body)
	if err != nil {
		return store.Ack{}, err
	}
	if err := statusError("put "+collection+"/"+id, status, data); err != nil {
		return store.Ack{}, err
	}
	var ack store.Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return store.Ack{}, fault.Newf(fault.ErrTransport, "put "+collection, "decode response: %v", err)
	}
	return ack, nil
}

// do sends one request. A 401 refreshes the token once and retries.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	if c.baseURL == "" {
		return 0, nil, fault.Newf(fault.ErrConfiguration, "store", "base url is not set")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, err
	}
	status, data, err := c.send(ctx, method, path, body, token)
	if err != nil || status != http.StatusUnauthorized {
		return status, data, err
	}
	c.log.Warnf("store rejected token on %s %s, refreshing", method, path)
	token, err = c.tokens.Refresh(ctx, token)
	if err != nil {
		return 0, nil, err
	}
	return c.send(ctx, method, path, body, token)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fault.New(fault.ErrTransport, "store", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fault.New(fault.ErrTransport, "store", err)
	}
	return resp.StatusCode, data, nil
}

func statusError(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return fault.Newf(fault.ErrNotFound, op, "status %d", status)
	default:
		return fault.Newf(fault.ErrTransport, op, "status %d: %s", status, excerpt(body))
	}
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

func dbPath(collection string) string { return "/" + url.PathEscape(collection) }

func docPath(collection, id string) string {
	return dbPath(collection) + "/" + url.PathEscape(id)
}
