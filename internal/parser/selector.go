package parser

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Selector は、事前にコンパイルしたCSSセレクタです。
// 元の文字列をエラーメッセージ用に保持します。
type Selector struct {
	text  string
	match cascadia.Selector
}

// MustSelector は、セレクタをコンパイルします。構文が不正な場合は panic します。
// パッケージ初期化時のサイト定義で使うことを想定しています。
func MustSelector(s string) Selector {
	return Selector{text: s, match: cascadia.MustCompile(s)}
}

// String は、コンパイル前のセレクタ文字列を返します。
func (s Selector) String() string {
	return s.text
}

// IsZero は、セレクタが未設定かどうかを返します。
func (s Selector) IsZero() bool {
	return s.match == nil
}

// In は、sel の子孫からセレクタに一致する要素を返します。
func (s Selector) In(sel *goquery.Selection) *goquery.Selection {
	return sel.FindMatcher(s.match)
}

// First は、sel の子孫から最初に一致した要素を返します。
func (s Selector) First(sel *goquery.Selection) *goquery.Selection {
	return sel.FindMatcher(s.match).First()
}
