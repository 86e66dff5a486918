package parser

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/urlnorm"

	"github.com/PuerkitoBio/goquery"
)

// SortOrder は、一覧の並び順です。サイトごとの値への対応は Listing.SortKeys で定義します。
type SortOrder string

const (
	SortNewest       SortOrder = "newest"
	SortPopularity   SortOrder = "popularity"
	SortAlphabetical SortOrder = "alphabetical"
	SortUpdated      SortOrder = "updated"
	SortRating       SortOrder = "rating"
)

// AllSortOrders は、全ての並び順を定義順に返します。
func AllSortOrders() []SortOrder {
	return []SortOrder{SortNewest, SortPopularity, SortAlphabetical, SortUpdated, SortRating}
}

// ParseSortOrder は、文字列を SortOrder に変換します。空文字は SortUpdated になります。
func ParseSortOrder(s string) (SortOrder, error) {
	if s == "" {
		return SortUpdated, nil
	}
	o := SortOrder(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(AllSortOrders(), o) {
		return "", fmt.Errorf("不明な並び順です: %q", s)
	}
	return o, nil
}

// Paging は、一覧の位置指定の方式です。
type Paging int

const (
	// ByPage は1始まりのページ番号で位置を指定します。
	ByPage Paging = iota
	// ByOffset は0始まりの行オフセットで位置を指定します。
	ByOffset
)

func (p Paging) String() string {
	if p == ByOffset {
		return "offset"
	}
	return "page"
}

// ListRequest は、一覧の1回分の取得要求です。
// Offset は Paging に応じてページ番号または行オフセットとして解釈されます。
type ListRequest struct {
	Offset int
	Query  string
	Tags   []model.Tag
	Sort   SortOrder
}

// Field は、一覧の行から抽出する項目です。
type Field int

const (
	FieldURL Field = iota
	FieldTitle
	FieldCover
	FieldAuthor
	FieldTags
)

// DefaultRequired は、欠けていると行を除外する項目の既定値です。
var DefaultRequired = []Field{FieldURL, FieldTitle}

// Row は、一覧の1行から抽出した生の値です。
// Rating は0〜1に正規化した値で、0以下の場合は評価不明として扱います。
type Row struct {
	Href     string
	Title    string
	AltTitle string
	Cover    string
	Author   string
	Tags     []model.Tag
	Rating   float32
	State    model.State
	NSFW     bool
}

// Listing は、ソースごとの一覧取得の設定です。
// URL構築関数がnilの場合、その種類の要求は空の結果になります。
type Listing struct {
	Paging   Paging
	PageSize int

	SortKeys       map[SortOrder]string
	DefaultSortKey string

	TagSeparator string
	// SortTagKeys が true の場合はタグキーをソートして連結し、false の場合は指定順のまま連結します。
	SortTagKeys bool

	SearchURL func(domain, query string, offset int) string
	FilterURL func(domain, tagKeys, sortKey string, offset int) string
	BrowseURL func(domain, sortKey string, offset int) string

	// Container が設定されている場合、ページに存在しなければ ParseError になります。
	Container Selector
	Rows      Selector
	MapRow    func(row *goquery.Selection) Row

	// Required は、欠けていると行を除外する項目です。nil の場合は DefaultRequired を使います。
	Required []Field
}

// SortKey は、並び順に対応するサイト固有の値を返します。
// 対応していない並び順の場合は DefaultSortKey を返します。
func (l *Listing) SortKey(order SortOrder) string {
	if k, ok := l.SortKeys[order]; ok {
		return k
	}
	return l.DefaultSortKey
}

// SortOrders は、このソースが対応する並び順を定義順に返します。
func (l *Listing) SortOrders() []SortOrder {
	var out []SortOrder
	for _, o := range AllSortOrders() {
		if _, ok := l.SortKeys[o]; ok {
			out = append(out, o)
		}
	}
	return out
}

// JoinTagKeys は、タグキーを重複なく TagSeparator で連結します。
func (l *Listing) JoinTagKeys(tags []model.Tag) string {
	keys := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Key == "" || slices.Contains(keys, t.Key) {
			continue
		}
		keys = append(keys, t.Key)
	}
	if l.SortTagKeys {
		slices.Sort(keys)
	}
	return strings.Join(keys, l.TagSeparator)
}

// Target は、要求から取得先URLを組み立てます。優先順位は
// 検索語、タグ絞り込み、並び順のみの一覧の順です。
// ok が false の場合、このソースでは満たせない要求のため取得せずに空の結果とします。
func (l *Listing) Target(domain string, req ListRequest) (target string, ok bool) {
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	if l.Paging == ByPage && offset < 1 {
		offset = 1
	}

	if q := strings.TrimSpace(req.Query); q != "" {
		// 多くのサイトは検索結果をオフセットでページングできない
		if l.Paging == ByOffset && offset != 0 {
			return "", false
		}
		if l.SearchURL == nil {
			return "", false
		}
		return l.SearchURL(domain, q, offset), true
	}

	if keys := l.JoinTagKeys(req.Tags); keys != "" {
		if l.FilterURL == nil {
			return "", false
		}
		return l.FilterURL(domain, keys, l.SortKey(req.Sort), offset), true
	}

	if l.BrowseURL == nil {
		return "", false
	}
	return l.BrowseURL(domain, l.SortKey(req.Sort), offset), true
}

// List は、要求を1回の取得に変換して実行し、行を作品に変換して返します。
func (l *Listing) List(ctx context.Context, pc *Context, req ListRequest) ([]model.Work, error) {
	domain := pc.Domain()
	target, ok := l.Target(domain, req)
	if !ok {
		pc.Logger.Printf("DEBUG: [%s] 対応していない一覧要求のため空の結果を返します (query=%q, offset=%d, paging=%s)",
			pc.Source.Name, req.Query, req.Offset, l.Paging)
		return []model.Work{}, nil
	}

	doc, err := pc.Document(ctx, domain, target)
	if err != nil {
		return nil, err
	}

	root := doc.Selection
	if !l.Container.IsZero() {
		root = l.Container.In(doc.Selection)
		if root.Length() == 0 {
			return nil, &ParseError{Source: pc.Source.Name, URL: target, What: l.Container.String()}
		}
	}
	return l.MapRows(pc, domain, l.Rows.In(root)), nil
}

// MapRows は、各行を独立に作品へ変換します。必須項目が欠けた行は除外します。
func (l *Listing) MapRows(pc *Context, domain string, rows *goquery.Selection) []model.Work {
	required := l.Required
	if required == nil {
		required = DefaultRequired
	}
	works := make([]model.Work, 0, rows.Length())
	rows.Each(func(i int, sel *goquery.Selection) {
		w, ok := BuildWork(pc.Source.Name, domain, l.MapRow(sel), required)
		if !ok {
			pc.Logger.Printf("DEBUG: [%s] 必須項目が欠けているため %d 行目を除外しました", pc.Source.Name, i)
			return
		}
		works = append(works, w)
	})
	return works
}

// BuildWork は、行の値を正規化して作品を組み立てます。
// required の項目が欠けている場合は ok=false を返します。
func BuildWork(source, domain string, row Row, required []Field) (work model.Work, ok bool) {
	href := resolveHref(domain, row.Href)
	title, alt := SplitAltTitle(row.Title)
	if a := strings.TrimSpace(row.AltTitle); a != "" {
		alt = a
	}
	author := collapseSpaces(row.Author)
	cover := urlnorm.ToAbsolute(domain, row.Cover)

	for _, f := range required {
		missing := false
		switch f {
		case FieldURL:
			missing = href == ""
		case FieldTitle:
			missing = title == ""
		case FieldCover:
			missing = cover == ""
		case FieldAuthor:
			missing = author == ""
		case FieldTags:
			missing = len(row.Tags) == 0
		}
		if missing {
			return model.Work{}, false
		}
	}

	return model.Work{
		ID:        model.NewID(source, href),
		Title:     title,
		AltTitle:  alt,
		URL:       href,
		PublicURL: urlnorm.ToAbsolute(domain, href),
		Author:    author,
		CoverURL:  cover,
		Tags:      model.UniqueTags(row.Tags),
		State:     row.State,
		Rating:    NormalizeRating(row.Rating, 1),
		NSFW:      row.NSFW,
		Source:    source,
	}, true
}

// NormalizeRating は、0〜scale の評価値を0〜1に変換します。0以下は評価不明になります。
func NormalizeRating(v, scale float32) float32 {
	if v <= 0 || scale <= 0 {
		return model.RatingUnknown
	}
	r := v / scale
	if r > 1 {
		r = 1
	}
	return r
}
