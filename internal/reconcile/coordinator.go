// Package reconcile merges an anonymous session's cart and wishlist into the
// authenticated account once the user logs in.
//
// The coordinator's own state is in-memory and best effort. Correctness across
// reloads relies on the remote merge being idempotent: a repeated merge of an
// already-retired session returns the account's collection unchanged.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/remote"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type State int

const (
	Idle State = iota
	MergePending
	Merging
	Merged
	MergeFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case MergePending:
		return "merge_pending"
	case Merging:
		return "merging"
	case Merged:
		return "merged"
	case MergeFailed:
		return "merge_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionStore は session.Store のうちマージで使う部分
type SessionStore interface {
	Peek(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

type Merger interface {
	Kind() model.CollectionKind
	Merge(ctx context.Context, sourceSessionID string, targetCredential string) (model.Collection, error)
}

type Invalidator interface {
	Invalidate()
}

// Target は1コレクション分（ストアとそのビュー）
type Target struct {
	Store Merger
	View  Invalidator
}

// Notice はUIに出す閉じられる通知
type Notice struct {
	Kind     model.CollectionKind
	Attempts int
	Err      error
}

func (n Notice) Message() string {
	return fmt.Sprintf("could not move your saved %s items to your account yet; they are kept and will be retried", n.Kind)
}

type Options struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *slog.Logger
	OnNotice        func(Notice)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Outcome は1コレクションのマージ結果
type Outcome struct {
	Kind       model.CollectionKind
	Collection model.Collection
	Attempts   int
	Err        error
}

type Result struct {
	State     State
	SessionID string
	Outcomes  []Outcome
}

// MergeError は失敗したコレクションをまとめたもの
type MergeError struct {
	Failures []Outcome
}

func (e *MergeError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s after %d attempt(s): %v", f.Kind, f.Attempts, f.Err))
	}
	return "merge failed: " + strings.Join(parts, "; ")
}

func (e *MergeError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

type Coordinator struct {
	sessions SessionStore
	targets  []Target
	opts     Options

	mu     sync.Mutex
	state  State
	notice *Notice

	sf singleflight.Group
}

func New(sessions SessionStore, targets []Target, opts Options) *Coordinator {
	return &Coordinator{
		sessions: sessions,
		targets:  targets,
		opts:     opts.withDefaults(),
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastNotice は閉じられていない最後の通知
func (c *Coordinator) LastNotice() (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return Notice{}, false
	}
	return *c.notice, true
}

func (c *Coordinator) DismissNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notice = nil
}

// Run は匿名→認証済みになったとき（または認証済みで再確認したとき）に呼ぶ。
// 匿名セッションIDが無ければ Idle のまま何もしない。
// 実行中に呼ばれたら同じ試行の結果を待つ。
func (c *Coordinator) Run(ctx context.Context, credential string) (Result, error) {
	if credential == "" {
		return Result{State: c.State()}, errors.New("merge requires a credential")
	}

	v, err, _ := c.sf.Do("merge", func() (interface{}, error) {
		return c.run(ctx, credential)
	})
	res, _ := v.(Result)
	return res, err
}

func (c *Coordinator) run(ctx context.Context, credential string) (Result, error) {
	sid, ok, err := c.sessions.Peek(ctx)
	if err != nil {
		return Result{State: c.State()}, err
	}
	if !ok {
		c.setState(Idle)
		return Result{State: Idle}, nil
	}

	c.setState(MergePending)
	log := c.opts.Logger.With("session_id", sid)
	log.Info("merge pending", "targets", len(c.targets))

	c.setState(Merging)
	outcomes := make([]Outcome, len(c.targets))

	//cartとwishlistは独立。片方の失敗でもう片方を止めない
	var g errgroup.Group
	for i, t := range c.targets {
		g.Go(func() error {
			outcomes[i] = c.mergeOne(ctx, log, t.Store, sid, credential)
			return nil
		})
	}
	_ = g.Wait()

	// サーバ側が変わっているかもしれないので両方捨てる
	for _, t := range c.targets {
		if t.View != nil {
			t.View.Invalidate()
		}
	}

	var failures []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, o)
		}
	}

	if len(failures) > 0 {
		//匿名セッションIDは残す（次の機会に再実行）
		c.setState(MergeFailed)
		for _, f := range failures {
			c.publish(Notice{Kind: f.Kind, Attempts: f.Attempts, Err: f.Err})
		}
		log.Warn("merge failed, anonymous session retained", "failures", len(failures))
		return Result{State: MergeFailed, SessionID: sid, Outcomes: outcomes}, &MergeError{Failures: failures}
	}

	//両方成功してから匿名セッションIDを消す
	if err := c.sessions.Clear(ctx); err != nil {
		c.setState(MergeFailed)
		log.Error("merge succeeded but session id could not be cleared", "err", err)
		return Result{State: MergeFailed, SessionID: sid, Outcomes: outcomes}, err
	}

	c.setState(Merged)
	c.DismissNotice()
	log.Info("merge completed")
	return Result{State: Merged, SessionID: sid, Outcomes: outcomes}, nil
}

func (c *Coordinator) mergeOne(ctx context.Context, log *slog.Logger, store Merger, sid, credential string) Outcome {
	out := Outcome{Kind: store.Kind()}
	log = log.With("kind", store.Kind())

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.InitialInterval
	bo.MaxInterval = c.opts.MaxInterval
	bo.MaxElapsedTime = 0

	op := func() error {
		out.Attempts++
		col, err := store.Merge(ctx, sid, credential)
		if err == nil {
			out.Collection = col
			return nil
		}
		if remote.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		log.Warn("merge attempt failed, retrying", "attempt", out.Attempts, "next", next, "err", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.opts.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		out.Err = err
		log.Error("merge gave up", "attempts", out.Attempts, "err", err)
	}
	return out
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Coordinator) publish(n Notice) {
	c.mu.Lock()
	c.notice = &n
	cb := c.opts.OnNotice
	c.mu.Unlock()

	if cb != nil {
		cb(n)
	}
}
