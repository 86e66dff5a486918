package parser

import (
	"context"
	"strings"
)

// AuthProbe は、Cookieによるログイン状態の判定と、ユーザー名の取得を行います。
// 判定結果はキャッシュしません。
type AuthProbe struct {
	// SessionCookie は、ログイン中にのみ存在するCookieの名前です。
	SessionCookie string
	// ProfilePath は、ログイン中にのみユーザー名が表示されるページです。
	ProfilePath string
	// Username は、ユーザー名を含む要素のセレクタです。
	Username Selector
	// UsernameAttr が設定されている場合は、テキストではなくこの属性を読みます。
	UsernameAttr string
}

// IsAuthorized は、現在のドメインにセッションCookieが存在するかを返します。通信は行いません。
func (a *AuthProbe) IsAuthorized(pc *Context) bool {
	_, ok := pc.Cookie(pc.Domain(), a.SessionCookie)
	return ok
}

// FetchUsername は、プロフィールページを取得してユーザー名を抽出します。
// ユーザー名が見つからない場合は *AuthRequiredError を返します。
func (a *AuthProbe) FetchUsername(ctx context.Context, pc *Context) (string, error) {
	domain := pc.Domain()
	doc, err := pc.Document(ctx, domain, a.ProfilePath)
	if err != nil {
		return "", err
	}
	el := a.Username.First(doc.Selection)
	var name string
	if a.UsernameAttr != "" {
		name, _ = el.Attr(a.UsernameAttr)
		name = strings.TrimSpace(name)
	} else {
		name = Text(el)
	}
	if name == "" {
		return "", &AuthRequiredError{Source: pc.Source.Name, Domain: domain}
	}
	return name, nil
}
