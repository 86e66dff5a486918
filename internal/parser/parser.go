// Package parser は、全サイトのパーサーが共有する抽出契約を定義します。
// 一覧のページング、チャプター列の番号付け、タグ辞書のキャッシュ、
// ログイン状態の判定、エラー分類を提供し、サイト固有の処理は
// internal/adapter の各実装が担います。
package parser

import (
	"context"

	"GoMangaParsers/internal/model"
)

// Parser は、1つのソースに結び付いたパーサーが満たすべきインターフェースです。
type Parser interface {
	// Source は、このパーサーが結び付いたソースを返します。
	Source() Source
	// Domain は、現在設定されているドメインを返します。
	Domain() string
	// SortOrders は、このソースが対応する並び順を返します。
	SortOrders() []SortOrder
	// List は、一覧の1ページ分を返します。
	List(ctx context.Context, req ListRequest) ([]model.Work, error)
	// Details は、同じIDのまま、チャプターや説明を付加した作品を返します。
	Details(ctx context.Context, work model.Work) (model.Work, error)
	// Pages は、チャプターのページ一覧を返します。
	Pages(ctx context.Context, chapter model.Chapter) ([]model.Page, error)
	// Tags は、ソースで利用できるタグの一覧を返します。
	Tags(ctx context.Context) ([]model.Tag, error)
}

// Authenticator は、ログインに対応したパーサーが追加で実装します。
type Authenticator interface {
	// IsAuthorized は、現在のCookieにセッションが存在するかを返します。通信は行いません。
	IsAuthorized() bool
	// Username は、ログイン中のユーザー名を返します。
	// 未ログインの場合は *AuthRequiredError を返します。
	Username(ctx context.Context) (string, error)
}

// PageResolver は、ページ一覧が画像ではなくHTMLページを指すパーサーが実装します。
type PageResolver interface {
	ResolvePage(ctx context.Context, page model.Page) (string, error)
}

// ResolvePageURL は、p が PageResolver を実装していれば画像URLを解決し、
// そうでなければ page.URL をそのまま返します。
func ResolvePageURL(ctx context.Context, p Parser, page model.Page) (string, error) {
	if r, ok := p.(PageResolver); ok {
		return r.ResolvePage(ctx, page)
	}
	return page.URL, nil
}
