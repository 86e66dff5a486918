package adapter

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/parser"
	"GoMangaParsers/internal/urlnorm"

	"github.com/PuerkitoBio/goquery"
)

const (
	// groupleSessionCookie は、ログイン中にのみ発行されるCookieです。
	groupleSessionCookie = "gwt"
	groupleRowsPerPage   = 70
	groupleReaderInit    = "rm_h.readerDoInit"
)

var (
	// リーダー初期化スクリプト内の ['サーバー', '', "パス"] を抽出
	grouplePagePattern = regexp.MustCompile(`\[\s*'([^']*)'\s*,\s*'[^']*'\s*,\s*"([^"]+)"`)

	groupleOngoing  = []string{"ongoing", "продолжается", "выпуск продолжается"}
	groupleFinished = []string{"completed", "завершен", "выпуск завершён", "выпуск завершен"}
)

// Grouple は、オフセットで一覧をページングし、ログインに対応したエンジンです。
// 成人向け作品などはログインしていないとログインページに置き換わるため、
// 詳細とページの取得では構造不一致をログイン要求として扱います。
type Grouple struct {
	base
	chapters *parser.ChapterList
	auth     *parser.AuthProbe
}

// NewGrouple は、Grouple の新しいインスタンスを返します。
func NewGrouple(pc *parser.Context) parser.Parser {
	g := &Grouple{
		base: base{
			pc: pc,
			listing: &parser.Listing{
				Paging:   parser.ByOffset,
				PageSize: groupleRowsPerPage,
				SortKeys: map[parser.SortOrder]string{
					parser.SortUpdated:      "updated",
					parser.SortPopularity:   "rate",
					parser.SortNewest:       "created",
					parser.SortRating:       "votes",
					parser.SortAlphabetical: "name",
				},
				DefaultSortKey: "rate",
				TagSeparator:   ",",
				SortTagKeys:    true,
				SearchURL: func(domain, query string, offset int) string {
					return fmt.Sprintf("/search/advancedResults?q=%s&offset=%d", url.QueryEscape(query), offset)
				},
				FilterURL: func(domain, tagKeys, sortKey string, offset int) string {
					return fmt.Sprintf("/search/advancedResults?genres=%s&sortType=%s&offset=%d", tagKeys, sortKey, offset)
				},
				BrowseURL: func(domain, sortKey string, offset int) string {
					return fmt.Sprintf("/list?sortType=%s&offset=%d", sortKey, offset)
				},
				Container: parser.MustSelector("div.tiles"),
				Rows:      parser.MustSelector("div.tile"),
			},
		},
		chapters: &parser.ChapterList{
			Rows:       parser.MustSelector("div.chapters-link tr.item-row"),
			Reversed:   true,
			DateLayout: "02.01.06",
			MapRow:     groupleChapterRow,
		},
		auth: &parser.AuthProbe{
			SessionCookie: groupleSessionCookie,
			ProfilePath:   "/private/index",
			Username:      parser.MustSelector("#profile .user-name"),
		},
	}
	g.listing.MapRow = g.mapRow
	g.tags = parser.NewTagDictionary(g.fetchTags)
	return g
}

func (g *Grouple) mapRow(tile *goquery.Selection) parser.Row {
	link := tile.Find("h3 a").First()
	href, _ := link.Attr("href")
	title := parser.Attr(link, "title")
	if title == "" {
		title = parser.Text(link)
	}
	row := parser.Row{
		Href:     href,
		Title:    title,
		AltTitle: parser.Text(tile.Find("h4").First()),
		Cover:    parser.Attr(tile.Find("img").First(), "data-original", "src"),
		Author:   parser.Text(tile.Find("a.person-link").First()),
		Tags:     tagsFromLinks(g.pc.Source.Name, tile.Find("a.element-link")),
		Rating:   parser.NormalizeRating(groupleRating(tile.Find("div.rating").AttrOr("title", "")), 10),
		NSFW:     tile.Find("span.mangaAdult").Length() > 0,
	}
	if tile.Find("span.mangaCompleted").Length() > 0 {
		row.State = model.StateFinished
	}
	return row
}

// groupleRating は、"8.7 из 10" のような表記から先頭の数値を取り出します。
func groupleRating(s string) float32 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(strings.Replace(fields[0], ",", ".", 1), 32)
	if err != nil {
		return 0
	}
	return float32(v)
}

func groupleChapterRow(row *goquery.Selection) parser.ChapterRow {
	a := row.Find("a.chapter-link").First()
	href, _ := a.Attr("href")
	date := parser.Attr(row.Find("td.date").First(), "data-date")
	if date == "" {
		date = parser.Text(row.Find("td.date").First())
	}
	return parser.ChapterRow{
		Href:      href,
		Name:      parser.Text(a),
		Scanlator: parser.Attr(a, "data-translator"),
		Date:      date,
	}
}

// List は、一覧の1ページ分を返します。offset は0始まりの行オフセットです。
func (g *Grouple) List(ctx context.Context, req parser.ListRequest) ([]model.Work, error) {
	return g.listing.List(ctx, g.pc, req)
}

// Details は、作品ページから説明・タグ・状態・チャプターを取得します。
func (g *Grouple) Details(ctx context.Context, work model.Work) (model.Work, error) {
	doc, domain, err := g.page(ctx, work.URL)
	if err != nil {
		return model.Work{}, err
	}
	content := doc.Find("div.leftContent").First()
	if err := g.require(content, work.PublicURL, "div.leftContent"); err != nil {
		return model.Work{}, g.wall(err, domain)
	}

	tags := tagsFromLinks(g.pc.Source.Name, content.Find("span.elem_genre a.element-link"))
	var authors []string
	content.Find("span.elem_author a.person-link").Each(func(_ int, a *goquery.Selection) {
		if name := parser.Text(a); name != "" {
			authors = append(authors, name)
		}
	})
	chapters := g.chapters.Extract(g.pc, domain, content)
	names := doc.Find("h1.names").First()
	picture := content.Find("div.picture-fotorama img").First()

	return work.With(func(w *model.Work) {
		fillIdentity(w, domain, parser.Text(names.Find(".name").First()), parser.Text(names.Find(".eng-name").First()), parser.Attr(picture, "src", "data-full"))
		if d := parser.Text(content.Find("div.manga-description").First()); d != "" {
			w.Description = d
		}
		if c := parser.Attr(picture, "data-full", "src"); c != "" {
			w.LargeCoverURL = urlnorm.ToAbsolute(domain, c)
		}
		if len(authors) > 0 {
			w.Author = strings.Join(authors, ", ")
		}
		if len(tags) > 0 {
			w.Tags = tags
		}
		if s := stateOf(parser.Text(content.Find("p.subject-meta")), groupleOngoing, groupleFinished); s != model.StateUnknown {
			w.State = s
		}
		w.Chapters = chapters
	}), nil
}

// Pages は、リーダーの初期化スクリプトから画像URLの一覧を抽出します。
func (g *Grouple) Pages(ctx context.Context, chapter model.Chapter) ([]model.Page, error) {
	target := withQuery(chapter.URL, "mtr=1")
	doc, domain, err := g.page(ctx, target)
	if err != nil {
		return nil, err
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := s.Text(); strings.Contains(text, groupleReaderInit) {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return nil, g.wall(&parser.ParseError{Source: g.pc.Source.Name, URL: target, What: groupleReaderInit}, domain)
	}

	matches := grouplePagePattern.FindAllStringSubmatch(script, -1)
	if len(matches) == 0 {
		return nil, &parser.ParseError{Source: g.pc.Source.Name, URL: target, What: "page list"}
	}
	pages := make([]model.Page, 0, len(matches))
	for _, m := range matches {
		raw := m[2]
		if !strings.HasPrefix(raw, "http") {
			raw = m[1] + raw
		}
		pages = append(pages, g.newPage(domain, raw))
	}
	return pages, nil
}

// IsAuthorized は、セッションCookieの有無でログイン状態を返します。
func (g *Grouple) IsAuthorized() bool {
	return g.auth.IsAuthorized(g.pc)
}

// Username は、プロフィールページからユーザー名を取得します。
func (g *Grouple) Username(ctx context.Context) (string, error) {
	return g.auth.FetchUsername(ctx, g.pc)
}

// wall は、未ログイン時の構造不一致をログイン要求に再分類します。
func (g *Grouple) wall(err error, domain string) error {
	return parser.AuthWall(err, g.auth.IsAuthorized(g.pc), g.pc.Source.Name, domain)
}

func (g *Grouple) fetchTags(ctx context.Context) ([]model.Tag, error) {
	const genresPath = "/list/genres/sort_name"
	doc, _, err := g.page(ctx, genresPath)
	if err != nil {
		return nil, err
	}
	links := doc.Find("table.table a.element-link")
	if err := g.require(links, genresPath, "table.table a.element-link"); err != nil {
		return nil, err
	}
	return tagsFromLinks(g.pc.Source.Name, links), nil
}

// withQuery は、URLにクエリパラメータを追加します。
func withQuery(rawURL, param string) string {
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + param
	}
	return rawURL + "?" + param
}
