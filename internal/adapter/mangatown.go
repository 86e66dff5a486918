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
	mangaTownOngoing  = []string{"ongoing"}
	mangaTownFinished = []string{"completed"}
)

// MangaTown は、ページ番号で一覧をページングするエンジンです。
// チャプターのページ一覧は画像ではなく閲覧ページを指すため、
// 画像URLは ResolvePage で個別に解決します。
type MangaTown struct {
	base
	chapters *parser.ChapterList
}

// NewMangaTown は、MangaTown の新しいインスタンスを返します。
func NewMangaTown(pc *parser.Context) parser.Parser {
	m := &MangaTown{
		base: base{
			pc: pc,
			listing: &parser.Listing{
				Paging: parser.ByPage,
				SortKeys: map[parser.SortOrder]string{
					parser.SortPopularity:   "views.za",
					parser.SortUpdated:      "last_chapter_time.za",
					parser.SortRating:       "rating.za",
					parser.SortAlphabetical: "name.az",
				},
				DefaultSortKey: "views.za",
				TagSeparator:   "-",
				SearchURL: func(domain, query string, page int) string {
					return fmt.Sprintf("/search?name=%s&page=%d", url.QueryEscape(query), page)
				},
				FilterURL: func(domain, tagKeys, sortKey string, page int) string {
					return fmt.Sprintf("/directory/%s/%d.htm?%s", tagKeys, page, sortKey)
				},
				BrowseURL: func(domain, sortKey string, page int) string {
					return fmt.Sprintf("/directory/0-0-0-0-0-0/%d.htm?%s", page, sortKey)
				},
				Rows: parser.MustSelector("ul.manga_pic_list li"),
			},
		},
		chapters: &parser.ChapterList{
			Rows:       parser.MustSelector("ul.chapter_list li"),
			Reversed:   true,
			DateLayout: "Jan 2,2006",
			MapRow:     mangaTownChapterRow,
		},
	}
	m.listing.MapRow = m.rowMapper(nil)
	m.tags = parser.NewTagDictionary(m.fetchTags)
	return m
}

// rowMapper は、タグ名を辞書で解決する行の変換関数を返します。
// 一覧の行にはタグのキーが含まれず、表示名だけが並んでいます。
func (m *MangaTown) rowMapper(dict *parser.TagMap) func(*goquery.Selection) parser.Row {
	return func(li *goquery.Selection) parser.Row {
		cover := li.Find("a.manga_cover").First()
		href, _ := cover.Attr("href")
		title := parser.Attr(li.Find("p.title a").First(), "title")
		if title == "" {
			title = parser.Text(li.Find("p.title a").First())
		}
		row := parser.Row{
			Href:   href,
			Title:  title,
			Cover:  parser.Attr(cover.Find("img").First(), "src"),
			Author: strings.TrimPrefix(parser.Text(li.Find("p.view").First()), "Author:"),
			Rating: parser.NormalizeRating(mangaTownScore(parser.Text(li.Find("p.score b").First())), 5),
		}
		if dict != nil {
			row.Tags = dict.Resolve(strings.Split(parser.Text(li.Find("p.keyWord").First()), ","))
		}
		return row
	}
}

func mangaTownScore(s string) float32 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0
	}
	return float32(v)
}

func mangaTownChapterRow(li *goquery.Selection) parser.ChapterRow {
	a := li.Find("a").First()
	href, _ := a.Attr("href")
	name := parser.Text(a)
	if extra := parser.Text(li.Find("span.title").First()); extra != "" {
		name += " " + extra
	}
	return parser.ChapterRow{
		Href: href,
		Name: name,
		Date: parser.Text(li.Find("span.time").First()),
	}
}

// List は、一覧の1ページ分を返します。offset は1始まりのページ番号です。
// タグ辞書を取得できない場合は、タグなしで一覧を返します。
func (m *MangaTown) List(ctx context.Context, req parser.ListRequest) ([]model.Work, error) {
	dict, err := m.tags.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.pc.Logger.Printf("WARNING: [%s] タグ辞書を取得できないため、タグなしで一覧を返します: %v", m.pc.Source.Name, err)
	}
	listing := *m.listing
	listing.MapRow = m.rowMapper(dict)
	return listing.List(ctx, m.pc, req)
}

// Details は、作品ページから説明・タグ・状態・チャプターを取得します。
func (m *MangaTown) Details(ctx context.Context, work model.Work) (model.Work, error) {
	doc, domain, err := m.page(ctx, work.URL)
	if err != nil {
		return model.Work{}, err
	}
	info := doc.Find("div.detail_info").First()
	if err := m.require(info, work.PublicURL, "div.detail_info"); err != nil {
		return model.Work{}, err
	}

	var tags []model.Tag
	var author, state string
	info.Find("ul li").Each(func(_ int, li *goquery.Selection) {
		label := strings.ToLower(parser.Text(li.Find("b").First()))
		switch {
		case strings.HasPrefix(label, "genre"):
			tags = tagsFromLinks(m.pc.Source.Name, li.Find("a"))
		case strings.HasPrefix(label, "author"):
			author = parser.Text(li.Find("a").First())
		case strings.HasPrefix(label, "status"):
			state = parser.Text(li)
		}
	})
	chapters := m.chapters.Extract(m.pc, domain, doc.Selection)
	title, alt := parser.SplitAltTitle(parser.Text(doc.Find("h1.title-top").First()))
	cover := parser.Attr(info.Find("img").First(), "src")

	return work.With(func(w *model.Work) {
		fillIdentity(w, domain, title, alt, cover)
		if d := parser.Text(info.Find("span#show").First()); d != "" {
			w.Description = strings.TrimSuffix(d, "HIDE")
		}
		if cover != "" {
			w.LargeCoverURL = urlnorm.ToAbsolute(domain, cover)
		}
		if author != "" {
			w.Author = author
		}
		if len(tags) > 0 {
			w.Tags = tags
		}
		if s := stateOf(state, mangaTownOngoing, mangaTownFinished); s != model.StateUnknown {
			w.State = s
		}
		w.Chapters = chapters
	}), nil
}

// Pages は、ページ選択欄から各閲覧ページのURLを返します。
// 画像URLは ResolvePage で取得します。
func (m *MangaTown) Pages(ctx context.Context, chapter model.Chapter) ([]model.Page, error) {
	doc, domain, err := m.page(ctx, chapter.URL)
	if err != nil {
		return nil, err
	}
	options := doc.Find("div.page_select select").First().Find("option")
	if err := m.require(options, chapter.URL, "div.page_select option"); err != nil {
		return nil, err
	}
	pages := make([]model.Page, 0, options.Length())
	seen := make(map[string]bool, options.Length())
	options.Each(func(_ int, opt *goquery.Selection) {
		v := parser.Attr(opt, "value")
		// 最後の選択肢はコメント欄への移動
		if v == "" || seen[v] || strings.Contains(v, "featured") {
			return
		}
		seen[v] = true
		pages = append(pages, m.newPage(domain, v))
	})
	return pages, nil
}

// ResolvePage は、閲覧ページを取得して画像URLを返します。
func (m *MangaTown) ResolvePage(ctx context.Context, page model.Page) (string, error) {
	doc, domain, err := m.page(ctx, page.URL)
	if err != nil {
		return "", err
	}
	img := doc.Find("img#image").First()
	src := parser.Attr(img, "src", "data-src")
	if src == "" {
		return "", &parser.ParseError{Source: m.pc.Source.Name, URL: page.URL, What: "img#image"}
	}
	return urlnorm.ToAbsolute(domain, src), nil
}

// fetchTags は、作品一覧ページのジャンル欄からタグ一覧を作成します。
func (m *MangaTown) fetchTags(ctx context.Context) ([]model.Tag, error) {
	const directoryPath = "/directory/"
	doc, _, err := m.page(ctx, directoryPath)
	if err != nil {
		return nil, err
	}
	links := doc.Find("ul.tag li a")
	if err := m.require(links, directoryPath, "ul.tag"); err != nil {
		return nil, err
	}
	return tagsFromLinks(m.pc.Source.Name, links), nil
}
