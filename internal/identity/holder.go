package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront/internal/session"
)

const CredentialKey = "storefront.credential"

// Transition は認証状態の変化
type Transition int

const (
	LoggedIn  Transition = iota + 1 // 無し→有り
	LoggedOut                       // 有り→無し
)

func (t Transition) String() string {
	switch t {
	case LoggedIn:
		return "logged_in"
	case LoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Listener は状態が変わったときに呼ばれる
type Listener func(ctx context.Context, t Transition)

// Holder は認証サブシステムの窓口。資格情報を保持して変化を通知する。
// 発行・更新そのものは扱わない。
type Holder struct {
	now       func() time.Time
	mu        sync.RWMutex
	kv        session.KV
	cred      string
	loaded    bool
	listeners []Listener
}

// NewHolder は kv があればそこに資格情報を保存する（nilならメモリのみ）
func NewHolder(kv session.KV) *Holder {
	return &Holder{kv: kv, now: time.Now}
}

func (h *Holder) Subscribe(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// Credential は今の資格情報
func (h *Holder) Credential(ctx context.Context) (string, bool, error) {
	if err := h.ensureLoaded(ctx); err != nil {
		return "", false, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cred, h.cred != "", nil
}

// Set はログイン完了（またはトークン更新）。無し→有りならLoggedInを通知。
func (h *Holder) Set(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return h.Clear(ctx)
	}
	if err := h.ensureLoaded(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	was := h.cred
	if h.kv != nil {
		if err := h.kv.Set(ctx, CredentialKey, credential); err != nil {
			h.mu.Unlock()
			return fmt.Errorf("persist credential: %w", err)
		}
	}
	h.cred = credential
	listeners := append([]Listener(nil), h.listeners...)
	h.mu.Unlock()

	//期限切れの資格情報は無いのと同じ（匿名からのログイン）
	if was == "" || Expired(was, h.now()) {
		notify(ctx, listeners, LoggedIn)
	}
	return nil
}

// Clear はログアウト・失効。有り→無しならLoggedOutを通知。
func (h *Holder) Clear(ctx context.Context) error {
	if err := h.ensureLoaded(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	was := h.cred
	if h.kv != nil {
		if err := h.kv.Delete(ctx, CredentialKey); err != nil {
			h.mu.Unlock()
			return fmt.Errorf("clear credential: %w", err)
		}
	}
	h.cred = ""
	listeners := append([]Listener(nil), h.listeners...)
	h.mu.Unlock()

	if was != "" {
		notify(ctx, listeners, LoggedOut)
	}
	return nil
}

func (h *Holder) ensureLoaded(ctx context.Context) error {
	h.mu.RLock()
	loaded := h.loaded
	h.mu.RUnlock()
	if loaded || h.kv == nil {
		return nil
	}

	v, ok, err := h.kv.Get(ctx, CredentialKey)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loaded {
		if ok {
			h.cred = v
		}
		h.loaded = true
	}
	return nil
}

func notify(ctx context.Context, listeners []Listener, t Transition) {
	for _, l := range listeners {
		l(ctx, t)
	}
}
