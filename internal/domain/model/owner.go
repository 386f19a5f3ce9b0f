package model

import "errors"

// コレクションの種類
type CollectionKind string

const (
	KindCart     CollectionKind = "cart"
	KindWishlist CollectionKind = "wishlist"
)

func (k CollectionKind) Valid() bool {
	return k == KindCart || k == KindWishlist
}

type OwnerKind string

const (
	OwnerAnonymous     OwnerKind = "anonymous"
	OwnerAuthenticated OwnerKind = "authenticated"
)

var ErrInvalidIdentity = errors.New("identity must carry exactly one of session id or credential")

// Identity はクライアント側から見た「今の呼び出し元」。
// SessionID と Credential はどちらか片方だけを持つ。
type Identity struct {
	Kind       OwnerKind
	SessionID  string
	Credential string
}

func Anonymous(sessionID string) Identity {
	return Identity{Kind: OwnerAnonymous, SessionID: sessionID}
}

func Authenticated(credential string) Identity {
	return Identity{Kind: OwnerAuthenticated, Credential: credential}
}

func (i Identity) IsAuthenticated() bool {
	return i.Kind == OwnerAuthenticated
}

// 両方 or 両方なしはエラー
func (i Identity) Validate() error {
	switch i.Kind {
	case OwnerAnonymous:
		if i.SessionID == "" || i.Credential != "" {
			return ErrInvalidIdentity
		}
	case OwnerAuthenticated:
		if i.Credential == "" || i.SessionID != "" {
			return ErrInvalidIdentity
		}
	default:
		return ErrInvalidIdentity
	}
	return nil
}

// キャッシュのキー（同じ持ち主かどうかの比較用）
func (i Identity) Key() string {
	if i.Kind == OwnerAuthenticated {
		return string(i.Kind) + ":" + i.Credential
	}
	return string(i.Kind) + ":" + i.SessionID
}

// Owner はサーバ側の持ち主。認証済みならIDはJWTのsub、匿名ならセッションID。
type Owner struct {
	Kind OwnerKind
	ID   string
}

func (o Owner) Valid() bool {
	return (o.Kind == OwnerAnonymous || o.Kind == OwnerAuthenticated) && o.ID != ""
}

// MergeRequest は匿名→認証済みの一回きりの移し替え
type MergeRequest struct {
	SourceSessionID  string
	TargetCredential string
}
