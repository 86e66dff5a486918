package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SplitAltTitle は、末尾の括弧に別題を含むタイトルを本題と別題に分割します。
// 例: "Foo Bar (Alt Name)" -> "Foo Bar", "Alt Name"
// 括弧の前が空になる場合は分割しません。
func SplitAltTitle(raw string) (primary, alt string) {
	raw = collapseSpaces(raw)
	if !strings.HasSuffix(raw, ")") {
		return raw, ""
	}
	open := strings.LastIndex(raw, "(")
	if open <= 0 {
		return raw, ""
	}
	primary = strings.TrimSpace(raw[:open])
	if primary == "" {
		return raw, ""
	}
	alt = strings.TrimSpace(raw[open+1 : len(raw)-1])
	return primary, alt
}

// TagTitle は、サイトのタグ表記を表示用に正規化します。
// アンダースコアを空白に置き換え、空白をまとめてタイトルケースにします。
func TagTitle(raw string) string {
	s := collapseSpaces(strings.ReplaceAll(raw, "_", " "))
	if s == "" {
		return ""
	}
	// cases.Caser は並行利用できないため呼び出しごとに生成する
	return cases.Title(language.Und).String(s)
}

// Text は、選択範囲のテキストを空白を正規化して返します。
func Text(sel *goquery.Selection) string {
	return collapseSpaces(sel.Text())
}

// Attr は、選択範囲の最初の要素から、names の順に最初に見つかった空でない属性値を返します。
// 遅延読み込み画像の data-src などに使います。
func Attr(sel *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := sel.Attr(n); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
