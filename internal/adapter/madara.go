package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/parser"
	"GoMangaParsers/internal/urlnorm"

	"github.com/PuerkitoBio/goquery"
)

var (
	madaraOngoing  = []string{"ongoing", "updating"}
	madaraFinished = []string{"completed", "finished"}
)

// Madara は、WordPressの "Madara" テーマで構築されたサイトのエンジンです。
// 一覧は1始まりのページ番号でページングします。
type Madara struct {
	base
	chapters *parser.ChapterList
}

// NewMadara は、Madara の新しいインスタンスを返します。
func NewMadara(pc *parser.Context) parser.Parser {
	m := &Madara{
		base: base{
			pc: pc,
			listing: &parser.Listing{
				Paging: parser.ByPage,
				SortKeys: map[parser.SortOrder]string{
					parser.SortUpdated:      "latest",
					parser.SortPopularity:   "views",
					parser.SortNewest:       "new-manga",
					parser.SortAlphabetical: "alphabet",
					parser.SortRating:       "rating",
				},
				DefaultSortKey: "latest",
				TagSeparator:   "&genre[]=",
				SearchURL: func(domain, query string, page int) string {
					return fmt.Sprintf("/page/%d/?s=%s&post_type=wp-manga", page, url.QueryEscape(query))
				},
				FilterURL: func(domain, tagKeys, sortKey string, page int) string {
					return fmt.Sprintf("/page/%d/?s=&post_type=wp-manga&genre[]=%s&op=1&m_orderby=%s", page, tagKeys, sortKey)
				},
				BrowseURL: func(domain, sortKey string, page int) string {
					return fmt.Sprintf("/page/%d/?s=&post_type=wp-manga&m_orderby=%s", page, sortKey)
				},
				Container: parser.MustSelector("div.c-page-content"),
				Rows:      parser.MustSelector("div.c-tabs-item__content"),
			},
		},
		chapters: &parser.ChapterList{
			Rows:       parser.MustSelector("li.wp-manga-chapter"),
			Reversed:   true,
			DateLayout: "January 2, 2006",
			MapRow:     madaraChapterRow,
		},
	}
	m.listing.MapRow = m.mapRow
	m.tags = parser.NewTagDictionary(m.fetchTags)
	return m
}

func (m *Madara) mapRow(item *goquery.Selection) parser.Row {
	link := item.Find("div.post-title a").First()
	href, _ := link.Attr("href")
	return parser.Row{
		Href:   href,
		Title:  parser.Text(link),
		Cover:  parser.Attr(item.Find("div.tab-thumb img").First(), "data-src", "data-lazy-src", "src"),
		Author: parser.Text(item.Find("div.mg_author a").First()),
		Tags:   tagsFromLinks(m.pc.Source.Name, item.Find("div.mg_genres a")),
		Rating: parser.NormalizeRating(madaraScore(parser.Text(item.Find("span.score").First())), 5),
		State:  stateOf(parser.Text(item.Find("div.mg_status div.summary-content")), madaraOngoing, madaraFinished),
		NSFW:   item.Find("span.manga-title-badges.adult").Length() > 0,
	}
}

func madaraScore(s string) float32 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0
	}
	return float32(v)
}

func madaraChapterRow(li *goquery.Selection) parser.ChapterRow {
	a := li.Find("a").First()
	href, _ := a.Attr("href")
	date := parser.Text(li.Find("span.chapter-release-date i").First())
	if date == "" {
		// 新着のチャプターは日付の代わりに "new" バッジが付く
		date = parser.Attr(li.Find("span.chapter-release-date a").First(), "title")
	}
	return parser.ChapterRow{
		Href: href,
		Name: parser.Text(a),
		Date: date,
	}
}

// List は、一覧の1ページ分を返します。offset は1始まりのページ番号です。
func (m *Madara) List(ctx context.Context, req parser.ListRequest) ([]model.Work, error) {
	return m.listing.List(ctx, m.pc, req)
}

// Details は、作品ページから説明・タグ・状態・チャプターを取得します。
func (m *Madara) Details(ctx context.Context, work model.Work) (model.Work, error) {
	doc, domain, err := m.page(ctx, work.URL)
	if err != nil {
		return model.Work{}, err
	}
	summary := doc.Find("div.summary_content").First()
	if err := m.require(summary, work.PublicURL, "div.summary_content"); err != nil {
		return model.Work{}, err
	}

	tags := tagsFromLinks(m.pc.Source.Name, summary.Find("div.genres-content a"))
	state := stateOf(parser.Text(summary.Find("div.post-status div.summary-content")), madaraOngoing, madaraFinished)
	chapters := m.chapters.Extract(m.pc, domain, doc.Selection)
	// 見出しには "HOT" などのバッジが含まれる
	heading := doc.Find("div.post-title h1").First().Clone()
	heading.Find("span.manga-title-badges").Remove()
	title, alt := parser.SplitAltTitle(parser.Text(heading))
	cover := parser.Attr(doc.Find("div.summary_image img").First(), "data-src", "data-lazy-src", "src")

	return work.With(func(w *model.Work) {
		fillIdentity(w, domain, title, alt, cover)
		if d := parser.Text(doc.Find("div.description-summary div.summary__content").First()); d != "" {
			w.Description = d
		}
		if a := parser.Text(summary.Find("div.author-content a").First()); a != "" {
			w.Author = a
		}
		if cover != "" {
			w.LargeCoverURL = urlnorm.ToAbsolute(domain, cover)
		}
		if len(tags) > 0 {
			w.Tags = tags
		}
		if state != model.StateUnknown {
			w.State = state
		}
		if score := madaraScore(parser.Text(doc.Find("span#averagerate").First())); score > 0 {
			w.Rating = parser.NormalizeRating(score, 5)
		}
		w.Chapters = chapters
	}), nil
}

// Pages は、リーダーページの画像を順に返します。
func (m *Madara) Pages(ctx context.Context, chapter model.Chapter) ([]model.Page, error) {
	doc, domain, err := m.page(ctx, chapter.URL)
	if err != nil {
		return nil, err
	}
	images := doc.Find("div.reading-content div.page-break img")
	if err := m.require(images, chapter.URL, "div.reading-content img"); err != nil {
		return nil, err
	}
	pages := make([]model.Page, 0, images.Length())
	images.Each(func(_ int, img *goquery.Selection) {
		if src := parser.Attr(img, "data-src", "data-lazy-src", "src"); src != "" {
			pages = append(pages, m.newPage(domain, src))
		}
	})
	return pages, nil
}

// fetchTags は、詳細検索フォームのジャンル選択肢からタグ一覧を作成します。
func (m *Madara) fetchTags(ctx context.Context) ([]model.Tag, error) {
	const searchPath = "/?s=&post_type=wp-manga"
	doc, _, err := m.page(ctx, searchPath)
	if err != nil {
		return nil, err
	}
	boxes := doc.Find("div.checkbox-group div.checkbox")
	if err := m.require(boxes, searchPath, "div.checkbox-group"); err != nil {
		return nil, err
	}
	var tags []model.Tag
	boxes.Each(func(_ int, box *goquery.Selection) {
		key := parser.Attr(box.Find("input").First(), "value")
		title := parser.TagTitle(parser.Text(box.Find("label").First()))
		if key != "" && title != "" {
			tags = append(tags, model.Tag{Title: title, Key: key, Source: m.pc.Source.Name})
		}
	})
	return model.UniqueTags(tags), nil
}
