package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// cart / wishlist 共通の匿名セッションIDのキー
const SessionKey = "storefront.session_id"

// Store は匿名セッションIDの寿命を持つ。
// 初回アクセスで作り、マージ成功後にだけ Clear される。
type Store struct {
	kv    KV
	key   string
	newID func() string
	sf    singleflight.Group
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{kv: kv, key: SessionKey, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate は保存済みのIDを返す。無ければ作って保存する。
// 同時に呼ばれても作るのは1つだけ。
func (s *Store) GetOrCreate(ctx context.Context) (string, error) {
	if id, ok, err := s.Peek(ctx); err != nil || ok {
		return id, err
	}

	v, err, _ := s.sf.Do(s.key, func() (interface{}, error) {
		//待っている間に他が作っていればそれを使う
		if id, ok, err := s.Peek(ctx); err != nil || ok {
			return id, err
		}

		id := s.newID()
		if err := s.kv.Set(ctx, s.key, id); err != nil {
			return "", fmt.Errorf("persist session id: %w", err)
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Peek は作らずに返す
func (s *Store) Peek(ctx context.Context) (string, bool, error) {
	id, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return "", false, fmt.Errorf("load session id: %w", err)
	}
	if !ok || id == "" {
		return "", false, nil
	}
	return id, true, nil
}

// Clear はマージ成功後にだけ呼ぶ
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear session id: %w", err)
	}
	return nil
}
