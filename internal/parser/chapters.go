package parser

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/urlnorm"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ChapterRow は、チャプター一覧の1行から抽出した生の値です。
type ChapterRow struct {
	Href      string
	Name      string
	Scanlator string
	Branch    string
	Date      string
}

// ChapterList は、ソースごとのチャプター一覧の設定です。
type ChapterList struct {
	Rows Selector
	// Reversed は、マークアップが新しい順に並んでいることを示します。
	Reversed   bool
	DateLayout string
	MapRow     func(row *goquery.Selection) ChapterRow
}

// Extract は、sel からチャプター行を抽出して番号付きのチャプター列を返します。
func (c *ChapterList) Extract(pc *Context, domain string, sel *goquery.Selection) []model.Chapter {
	nodes := c.Rows.In(sel)
	rows := make([]ChapterRow, 0, nodes.Length())
	nodes.Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, c.MapRow(s))
	})
	chapters := Materialize(pc.Source.Name, domain, rows, c.Reversed, c.DateLayout)
	if dropped := len(rows) - len(chapters); dropped > 0 {
		pc.Logger.Printf("DEBUG: [%s] URLを解決できないチャプター行を %d 件除外しました", pc.Source.Name, dropped)
	}
	return chapters
}

// Materialize は、行の列を番号付きのチャプター列に変換します。
//
// reversed が true の場合は行を逆順に走査します。URLを解決できない行は除外し、
// 残った行に走査順で1から欠番のない番号を振ります。
// 名前や日付などの他の項目は、取得できなくても行を除外しません。
func Materialize(source, domain string, rows []ChapterRow, reversed bool, dateLayout string) []model.Chapter {
	ordered := rows
	if reversed {
		ordered = slices.Clone(rows)
		slices.Reverse(ordered)
	}

	chapters := make([]model.Chapter, 0, len(ordered))
	for _, r := range ordered {
		href := resolveHref(domain, r.Href)
		if href == "" {
			continue
		}
		number := len(chapters) + 1
		name := collapseSpaces(r.Name)
		if name == "" {
			name = "Chapter " + strconv.Itoa(number)
		}
		chapters = append(chapters, model.Chapter{
			ID:         model.NewID(source, href),
			Name:       name,
			Number:     number,
			URL:        href,
			Scanlator:  collapseSpaces(r.Scanlator),
			Branch:     collapseSpaces(r.Branch),
			UploadDate: ParseDate(dateLayout, r.Date),
			Source:     source,
		})
	}
	return chapters
}

// ParseDate は、layout に従って日付文字列を解析し、エポックミリ秒を返します。
// 空文字や解析できない文字列の場合は0を返します。
func ParseDate(layout, s string) int64 {
	s = collapseSpaces(s)
	if layout == "" || s == "" {
		return 0
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		// サイトによって月名の大文字小文字が揺れる
		t, err = time.Parse(layout, titleMonth(s))
		if err != nil {
			return 0
		}
	}
	return t.UnixMilli()
}

// titleMonth は、各単語の先頭の1文字だけを大文字にします。
func titleMonth(s string) string {
	return cases.Title(language.Und).String(strings.ToLower(s))
}

// resolveHref は、リンク先を正規化済みの相対URLに変換します。
// ページ内リンクやスクリプトのように取得できないものは空文字を返します。
func resolveHref(domain, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(strings.ToLower(raw), "javascript:") {
		return ""
	}
	return urlnorm.ToRelative(domain, raw)
}
