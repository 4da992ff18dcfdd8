// Package client is a Go SDK for the chroma-server HTTP API.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

type Client struct {
	baseURL string
	http    *resty.Client
}

// New constructs a Client for baseURL, e.g. http://localhost:8000.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL cannot be empty")
	}
	c := &Client{
		baseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx).SetError(&errorBody{})
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return newAPIError(resp)
	}
	return nil
}

// Heartbeat returns the server clock in nanoseconds.
func (c *Client) Heartbeat(ctx context.Context) (int64, error) {
	var out map[string]int64
	if err := c.do(ctx, resty.MethodGet, "/api/v1/heartbeat", nil, &out); err != nil {
		return 0, err
	}
	return out["nanosecond heartbeat"], nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var out string
	err := c.do(ctx, resty.MethodGet, "/api/v1/version", nil, &out)
	return out, err
}

// ListCollections returns collections; limit 0 means no limit.
func (c *Client) ListCollections(ctx context.Context, limit, offset int) ([]model.Collection, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/collections"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []model.Collection
	err := c.do(ctx, resty.MethodGet, path, nil, &out)
	return out, err
}

type CreateCollectionRequest struct {
	Name        string         `json:"name"`
	Metadata    model.Metadata `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create,omitempty"`
}

func (c *Client) CreateCollection(ctx context.Context, req CreateCollectionRequest) (*model.Collection, error) {
	var out model.Collection
	if err := c.do(ctx, resty.MethodPost, "/api/v1/collections", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCollection(ctx context.Context, name string) (*model.Collection, error) {
	var out model.Collection
	if err := c.do(ctx, resty.MethodGet, "/api/v1/collections/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.do(ctx, resty.MethodDelete, "/api/v1/collections/"+url.PathEscape(name), nil, nil)
}

// AddRequest is shared by Add and Upsert.
type AddRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings,omitempty"`
	Documents  []*string        `json:"documents,omitempty"`
	Metadatas  []model.Metadata `json:"metadatas,omitempty"`
	URIs       []*string        `json:"uris,omitempty"`
}

func collectionPath(id, op string) string {
	return "/api/v1/collections/" + url.PathEscape(id) + "/" + op
}

func (c *Client) Add(ctx context.Context, collectionID string, req AddRequest) error {
	return c.do(ctx, resty.MethodPost, collectionPath(collectionID, "add"), req, nil)
}

func (c *Client) Upsert(ctx context.Context, collectionID string, req AddRequest) error {
	return c.do(ctx, resty.MethodPost, collectionPath(collectionID, "upsert"), req, nil)
}

type GetRequest struct {
	IDs           []string               `json:"ids,omitempty"`
	Where         map[string]interface{} `json:"where,omitempty"`
	WhereDocument map[string]interface{} `json:"where_document,omitempty"`
	Limit         *int                   `json:"limit,omitempty"`
	Offset        int                    `json:"offset,omitempty"`
	Include       []string               `json:"include,omitempty"`
}

func (c *Client) Get(ctx context.Context, collectionID string, req GetRequest) (*model.GetResult, error) {
	var out model.GetResult
	if err := c.do(ctx, resty.MethodPost, collectionPath(collectionID, "get"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type QueryRequest struct {
	QueryEmbeddings [][]float32            `json:"query_embeddings,omitempty"`
	QueryTexts      []string               `json:"query_texts,omitempty"`
	NResults        int                    `json:"n_results,omitempty"`
	Where           map[string]interface{} `json:"where,omitempty"`
	WhereDocument   map[string]interface{} `json:"where_document,omitempty"`
	Include         []string               `json:"include,omitempty"`
}

func (c *Client) Query(ctx context.Context, collectionID string, req QueryRequest) (*model.QueryResult, error) {
	var out model.QueryResult
	if err := c.do(ctx, resty.MethodPost, collectionPath(collectionID, "query"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type DeleteRequest struct {
	IDs           []string               `json:"ids,omitempty"`
	Where         map[string]interface{} `json:"where,omitempty"`
	WhereDocument map[string]interface{} `json:"where_document,omitempty"`
}

// Delete returns the ids that were removed.
func (c *Client) Delete(ctx context.Context, collectionID string, req DeleteRequest) ([]string, error) {
	var out []string
	err := c.do(ctx, resty.MethodPost, collectionPath(collectionID, "delete"), req, &out)
	return out, err
}

func (c *Client) Count(ctx context.Context, collectionID string) (int, error) {
	var out int
	err := c.do(ctx, resty.MethodGet, "/api/v1/collections/"+url.PathEscape(collectionID)+"/count", nil, &out)
	return out, err
}
