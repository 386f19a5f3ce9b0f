package remote

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

	"storefront/internal/domain/model"
)

const HeaderSessionID = "X-Session-Id"

// Store はリモートの cart / wishlist（kindごとに1つ）。
// 持ち主はセッションIDか資格情報のどちらか片方で指定する。
type Store interface {
	Kind() model.CollectionKind
	Fetch(ctx context.Context, owner model.Identity) (model.Collection, error)
	AddItem(ctx context.Context, owner model.Identity, item model.Item) (model.Collection, error)
	UpdateQuantity(ctx context.Context, owner model.Identity, productID string, qty int64) (model.Collection, error)
	RemoveItem(ctx context.Context, owner model.Identity, productID string) (model.Collection, error)
	Merge(ctx context.Context, sourceSessionID string, targetCredential string) (model.Collection, error)
}

// Toggler は wishlist のトグル
type Toggler interface {
	Toggle(ctx context.Context, owner model.Identity, item model.Item) (model.Collection, bool, error)
}

// Client はHTTPのリモートストア
type Client struct {
	kind    model.CollectionKind
	baseURL string
	http    *http.Client
	timeout time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout は1リクエストの上限。超えたら ErrServiceUnavailable
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func NewCartClient(baseURL string, opts ...ClientOption) *Client {
	return newClient(model.KindCart, baseURL, opts...)
}

func NewWishlistClient(baseURL string, opts ...ClientOption) *Client {
	return newClient(model.KindWishlist, baseURL, opts...)
}

func newClient(kind model.CollectionKind, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		kind:    kind,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Kind() model.CollectionKind { return c.kind }

func (c *Client) Fetch(ctx context.Context, owner model.Identity) (model.Collection, error) {
	var out model.CollectionResponse
	if err := c.do(ctx, "fetch", owner, http.MethodGet, "", nil, &out); err != nil {
		return model.Collection{}, err
	}
	return c.collection(out), nil
}

func (c *Client) AddItem(ctx context.Context, owner model.Identity, item model.Item) (model.Collection, error) {
	if strings.TrimSpace(item.ProductID) == "" {
		return model.Collection{}, c.fail("addItem", owner, ErrValidation, "product_id is required")
	}
	if c.kind == model.KindCart && item.Quantity < 1 {
		return model.Collection{}, c.fail("addItem", owner, ErrValidation, "quantity must be >= 1")
	}

	var out model.CollectionResponse
	if err := c.do(ctx, "addItem", owner, http.MethodPost, "/items", item, &out); err != nil {
		return model.Collection{}, err
	}
	return c.collection(out), nil
}

// UpdateQuantity は cart のみ。1未満はサーバ側で削除扱い。
func (c *Client) UpdateQuantity(ctx context.Context, owner model.Identity, productID string, qty int64) (model.Collection, error) {
	if c.kind != model.KindCart {
		return model.Collection{}, c.fail("updateQuantity", owner, ErrValidation, "quantity is cart only")
	}
	if strings.TrimSpace(productID) == "" {
		return model.Collection{}, c.fail("updateQuantity", owner, ErrValidation, "product_id is required")
	}
	if qty < 1 {
		return c.RemoveItem(ctx, owner, productID)
	}

	body := struct {
		Quantity int64 `json:"quantity"`
	}{Quantity: qty}

	var out model.CollectionResponse
	if err := c.do(ctx, "updateQuantity", owner, http.MethodPut, "/items/"+url.PathEscape(productID), body, &out); err != nil {
		return model.Collection{}, err
	}
	return c.collection(out), nil
}

func (c *Client) RemoveItem(ctx context.Context, owner model.Identity, productID string) (model.Collection, error) {
	if strings.TrimSpace(productID) == "" {
		return model.Collection{}, c.fail("removeItem", owner, ErrValidation, "product_id is required")
	}

	var out model.CollectionResponse
	if err := c.do(ctx, "removeItem", owner, http.MethodDelete, "/items/"+url.PathEscape(productID), nil, &out); err != nil {
		return model.Collection{}, err
	}
	return c.collection(out), nil
}

func (c *Client) Merge(ctx context.Context, sourceSessionID string, targetCredential string) (model.Collection, error) {
	owner := model.Authenticated(targetCredential)
	if sourceSessionID == "" || targetCredential == "" {
		return model.Collection{}, c.fail("merge", owner, ErrValidation, "session id and credential are required")
	}

	body := struct {
		SessionID string `json:"session_id"`
	}{SessionID: sourceSessionID}

	var out model.CollectionResponse
	if err := c.do(ctx, "merge", owner, http.MethodPost, "/merge", body, &out); err != nil {
		return model.Collection{}, err
	}
	return c.collection(out), nil
}

// Toggle は wishlist のみ。追加したら true
func (c *Client) Toggle(ctx context.Context, owner model.Identity, item model.Item) (model.Collection, bool, error) {
	if c.kind != model.KindWishlist {
		return model.Collection{}, false, c.fail("toggle", owner, ErrValidation, "toggle is wishlist only")
	}
	if strings.TrimSpace(item.ProductID) == "" {
		return model.Collection{}, false, c.fail("toggle", owner, ErrValidation, "product_id is required")
	}

	var out struct {
		model.CollectionResponse
		Added bool `json:"added"`
	}
	if err := c.do(ctx, "toggle", owner, http.MethodPost, "/toggle", item, &out); err != nil {
		return model.Collection{}, false, err
	}
	return c.collection(out.CollectionResponse), out.Added, nil
}

func (c *Client) collection(r model.CollectionResponse) model.Collection {
	if r.Kind == "" {
		r.Kind = c.kind
	}
	return r.Collection()
}

func (c *Client) fail(op string, owner model.Identity, kind error, msg string) error {
	return &Error{Op: op, Kind: c.kind, Owner: owner.Kind, Message: msg, Err: kind}
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, op string, owner model.Identity, method, path string, in, out interface{}) error {
	if err := owner.Validate(); err != nil {
		return c.fail(op, owner, ErrValidation, err.Error())
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return c.fail(op, owner, ErrValidation, err.Error())
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+string(c.kind)+path, body)
	if err != nil {
		return c.fail(op, owner, ErrValidation, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	//資格情報が優先、両方は送らない
	if owner.IsAuthenticated() {
		req.Header.Set("Authorization", "Bearer "+owner.Credential)
	} else {
		req.Header.Set(HeaderSessionID, owner.SessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.fail(op, owner, ErrServiceUnavailable, "timeout")
		}
		return &Error{Op: op, Kind: c.kind, Owner: owner.Kind, Message: err.Error(), Err: ErrNetwork}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Kind: c.kind, Owner: owner.Kind, Status: resp.StatusCode, Message: err.Error(), Err: ErrNetwork}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return &Error{
			Op:      op,
			Kind:    c.kind,
			Owner:   owner.Kind,
			Status:  resp.StatusCode,
			Message: eb.Error,
			Err:     classifyStatus(resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Kind: c.kind, Owner: owner.Kind, Status: resp.StatusCode, Message: fmt.Sprintf("decode: %v", err), Err: ErrServiceUnavailable}
	}
	return nil
}

var (
	_ Store   = (*Client)(nil)
	_ Toggler = (*Client)(nil)
)
