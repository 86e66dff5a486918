// Package urlnorm は、ソースごとに設定されたドメインを基準に、
// 相対URLと絶対URLを相互に変換します。
package urlnorm

import (
	"net/url"
	"strings"
)

const defaultScheme = "https"

// ToAbsolute は、取得可能な絶対URLを返します。
// 絶対URLはそのまま、プロトコル相対URLにはスキームを補い、
// パス相対URLは domain を基準に解決します。空文字は空文字のまま返します。
func ToAbsolute(domain, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Scheme != "" {
		return u.String()
	}
	if u.Host != "" {
		u.Scheme = defaultScheme
		return u.String()
	}
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	u.Scheme = defaultScheme
	u.Host = domain
	return u.String()
}

// ToRelative は、保存・ID生成に使う正規化済みの相対URLを返します。
// domain 以外のホストを指すURLは書き換えず、絶対URLのまま返します。
func ToRelative(domain, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Host == "" {
		if u.Scheme != "" {
			// mailto: などのパスを持たないURL
			return raw
		}
		if !strings.HasPrefix(u.Path, "/") {
			u.Path = "/" + u.Path
		}
		return u.String()
	}
	if !strings.EqualFold(u.Hostname(), domain) && !strings.EqualFold(u.Host, domain) {
		if u.Scheme == "" {
			u.Scheme = defaultScheme
		}
		return u.String()
	}
	u.Scheme = ""
	u.Host = ""
	u.User = nil
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// Host は、URLのホスト名を返します。ホストを持たない場合は fallback を返します。
func Host(raw, fallback string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fallback
	}
	return u.Hostname()
}
