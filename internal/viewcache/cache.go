// Package viewcache holds the in-memory projection of a collection that the UI
// reads. It is read-through only: every mutation invalidates it and the next read
// refetches from the remote store.
package viewcache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"storefront/internal/domain/model"

	"golang.org/x/sync/singleflight"
)

// Fetcher は remote.Store の読み取り部分
type Fetcher interface {
	Fetch(ctx context.Context, owner model.Identity) (model.Collection, error)
}

// View は UI が読む形（件数と合計は導出）
type View struct {
	Collection model.Collection
	Count      int64
	Total      int64
	FetchedAt  time.Time
}

type Cache struct {
	fetcher Fetcher
	maxAge  time.Duration
	now     func() time.Time

	mu       sync.Mutex
	view     *View
	ownerKey string
	gen      uint64

	sf singleflight.Group
}

type Option func(*Cache)

// WithMaxAge は0なら無効化されるまでずっと新しい扱い
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) { c.maxAge = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{fetcher: fetcher, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read は新しければメモリから、そうでなければ取り直す。
// 持ち主が変わっていれば必ず取り直す。
func (c *Cache) Read(ctx context.Context, owner model.Identity) (View, error) {
	key := owner.Key()

	c.mu.Lock()
	if c.view != nil && c.ownerKey == key && c.fresh(c.view) {
		v := *c.view
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gen
	c.mu.Unlock()

	//無効化より前に始まった取得には相乗りしない
	res, err, _ := c.sf.Do(key+"#"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		col, err := c.fetcher.Fetch(ctx, owner)
		if err != nil {
			return View{}, err
		}
		v := View{
			Collection: col,
			Count:      col.Count(),
			Total:      col.Subtotal(),
			FetchedAt:  c.now(),
		}

		c.mu.Lock()
		//取得中に無効化されたら保存しない
		if c.gen == gen {
			c.view = &v
			c.ownerKey = key
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return View{}, err
	}
	return res.(View), nil
}

// Invalidate は次の Read で必ず取り直させる
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = nil
	c.ownerKey = ""
	c.gen++
}

// Peek は取得せずに今の値を返す
func (c *Cache) Peek() (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil {
		return View{}, false
	}
	return *c.view, true
}

func (c *Cache) fresh(v *View) bool {
	if c.maxAge <= 0 {
		return true
	}
	return c.now().Sub(v.FetchedAt) < c.maxAge
}
