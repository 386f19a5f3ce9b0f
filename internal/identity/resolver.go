package identity

import (
	"context"
	"log/slog"
	"time"

	"storefront/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
)

// CredentialSource は資格情報の有無を返す（Holderが実装）
type CredentialSource interface {
	Credential(ctx context.Context) (string, bool, error)
}

// SessionSource は匿名セッションIDを返す（session.Storeが実装）
type SessionSource interface {
	GetOrCreate(ctx context.Context) (string, error)
}

// credentialClearer は期限切れの資格情報を捨てられる CredentialSource（Holder）
type credentialClearer interface {
	Clear(ctx context.Context) error
}

// Invalidator は認証済みのキャッシュを捨てる
type Invalidator interface {
	Invalidate()
}

// Resolver は今の呼び出し元が匿名か認証済みかを決める。
// 常にどちらか片方だけを返す。
type Resolver struct {
	creds        CredentialSource
	sessions     SessionSource
	now          func() time.Time
	invalidators []Invalidator
	logger       *slog.Logger
}

type ResolverOption func(*Resolver)

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// WithInvalidators は期限切れで匿名に戻すときに捨てるキャッシュ
func WithInvalidators(inv ...Invalidator) ResolverOption {
	return func(r *Resolver) { r.invalidators = append(r.invalidators, inv...) }
}

func NewResolver(creds CredentialSource, sessions SessionSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{creds: creds, sessions: sessions, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current は今のIdentity。匿名ならセッションIDを（無ければ作って）返す。
func (r *Resolver) Current(ctx context.Context) (model.Identity, error) {
	cred, ok, err := r.creds.Credential(ctx)
	if err != nil {
		return model.Identity{}, err
	}

	if ok {
		if !Expired(cred, r.now()) {
			return model.Authenticated(cred), nil
		}
		//認証済みのデータを匿名で見せないよう先に捨てる
		r.logger.Info("credential expired, falling back to anonymous")
		for _, inv := range r.invalidators {
			inv.Invalidate()
		}
		//有り→無しの遷移として捨てる（LoggedOutが通知される）
		if c, ok := r.creds.(credentialClearer); ok {
			if err := c.Clear(ctx); err != nil {
				return model.Identity{}, err
			}
		}
	}

	sid, err := r.sessions.GetOrCreate(ctx)
	if err != nil {
		return model.Identity{}, err
	}
	return model.Anonymous(sid), nil
}

// Authenticated は有効な資格情報があるか（セッションIDは作らない）
func (r *Resolver) Authenticated(ctx context.Context) (string, bool, error) {
	cred, ok, err := r.creds.Credential(ctx)
	if err != nil || !ok {
		return "", false, err
	}
	if Expired(cred, r.now()) {
		return "", false, nil
	}
	return cred, true, nil
}

// Expired はJWTのexpだけを見る（署名は検証しない）。
// JWTでない・expが無いトークンは期限切れ扱いにしない。
func Expired(credential string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return false
	}

	switch exp := claims["exp"].(type) {
	case float64:
		return now.Unix() >= int64(exp)
	case int64:
		return now.Unix() >= exp
	default:
		return false
	}
}
