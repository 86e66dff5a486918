// Package adapter は、サイト固有の解析ロジックと、エンジン名から
// パーサーを生成するレジストリを提供します。これにより、様々な
// ウェブサイトにプラグイン形式で対応できます。
//
// 各エンジンは internal/parser の共有部品（一覧エンジン、チャプター列の
// 番号付け、タグ辞書、ログイン判定）の設定として記述されます。
package adapter

import (
	"context"
	"strings"

	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/parser"
	"GoMangaParsers/internal/urlnorm"

	"github.com/PuerkitoBio/goquery"
)

// base は、全エンジンに共通するメソッドを実装します。
type base struct {
	pc      *parser.Context
	listing *parser.Listing
	tags    *parser.TagDictionary
}

func (b *base) Source() parser.Source {
	return b.pc.Source
}

func (b *base) Domain() string {
	return b.pc.Domain()
}

func (b *base) SortOrders() []parser.SortOrder {
	return b.listing.SortOrders()
}

func (b *base) Tags(ctx context.Context) ([]model.Tag, error) {
	return b.tags.Tags(ctx)
}

// page は、ドメインを一度だけ読み取り、ドキュメントと共に返します。
func (b *base) page(ctx context.Context, rawURL string) (*goquery.Document, string, error) {
	domain := b.pc.Domain()
	doc, err := b.pc.Document(ctx, domain, rawURL)
	return doc, domain, err
}

// require は、sel が空の場合に構造不一致のエラーを返します。
func (b *base) require(sel *goquery.Selection, pageURL, what string) error {
	if sel.Length() == 0 {
		return &parser.ParseError{Source: b.pc.Source.Name, URL: pageURL, What: what}
	}
	return nil
}

// newPage は、チャプター内の1ページを組み立てます。IDは画像URLから決まります。
func (b *base) newPage(domain, raw string) model.Page {
	return model.Page{
		ID:     model.NewID(b.pc.Source.Name, urlnorm.ToRelative(domain, raw)),
		URL:    urlnorm.ToAbsolute(domain, raw),
		Source: b.pc.Source.Name,
	}
}

// fillIdentity は、URLだけから組み立てた作品に作品ページの見出しと表紙を補います。
// 一覧から得たタイトルや表紙は上書きしません。
func fillIdentity(w *model.Work, domain, title, alt, cover string) {
	if w.Title == "" && title != "" {
		w.Title = title
		if w.AltTitle == "" {
			w.AltTitle = alt
		}
	}
	if w.CoverURL == "" && cover != "" {
		w.CoverURL = urlnorm.ToAbsolute(domain, cover)
	}
}

// tagFromHref は、リンク先の最後のパス要素をキーとしたタグを返します。
func tagFromHref(source string, a *goquery.Selection) (model.Tag, bool) {
	href, _ := a.Attr("href")
	key := lastSegment(href)
	title := parser.TagTitle(parser.Text(a))
	if key == "" || title == "" {
		return model.Tag{}, false
	}
	return model.Tag{Title: title, Key: key, Source: source}, true
}

// tagsFromLinks は、リンクの集合からタグを重複なく抽出します。
func tagsFromLinks(source string, links *goquery.Selection) []model.Tag {
	var tags []model.Tag
	links.Each(func(_ int, a *goquery.Selection) {
		if t, ok := tagFromHref(source, a); ok {
			tags = append(tags, t)
		}
	})
	return model.UniqueTags(tags)
}

// lastSegment は、URLのクエリを除いたパスの最後の要素を返します。
func lastSegment(href string) string {
	href = strings.TrimSpace(href)
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}
	return href
}

// stateOf は、状態を表すテキストを State に変換します。
func stateOf(text string, ongoing, finished []string) model.State {
	t := strings.ToLower(text)
	for _, w := range finished {
		if strings.Contains(t, w) {
			return model.StateFinished
		}
	}
	for _, w := range ongoing {
		if strings.Contains(t, w) {
			return model.StateOngoing
		}
	}
	return model.StateUnknown
}
