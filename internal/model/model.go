// Package model は、全パーサーが生成し、アプリケーション全体が利用する
// 正規化済みデータモデル（作品・チャプター・ページ・タグ）を定義します。
package model

import (
	"slices"

	"github.com/google/uuid"
)

// State は作品の連載状態を表します。ゼロ値は不明です。
type State string

const (
	StateUnknown  State = ""
	StateOngoing  State = "ongoing"
	StateFinished State = "finished"
)

// String は State を人間可読な文字列に変換します。
func (s State) String() string {
	if s == StateUnknown {
		return "unknown"
	}
	return string(s)
}

// RatingUnknown は評価が取得できなかったことを示す値です。
const RatingUnknown float32 = -1

// idNamespace は作品・チャプター・ページのID生成に使う名前空間です。
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gomangaparsers"))

// NewID は、ソース名と正規化済みの相対URLから決定的なIDを生成します。
// 同じURLは常に同じIDになります。
func NewID(source, url string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(source+"\x00"+url))
}

// Tag は、ジャンル・カテゴリのラベルとサイト固有の検索キーを保持します。
type Tag struct {
	Title  string `json:"title"`
	Key    string `json:"key"`
	Source string `json:"source"`
}

// Same は、2つのタグが同一か（同じソース・同じキー）を判定します。タイトルは比較しません。
func (t Tag) Same(other Tag) bool {
	return t.Source == other.Source && t.Key == other.Key
}

// UniqueTags は、最初に出現した順序を保ったままタグの重複を除去します。
func UniqueTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	type ident struct{ source, key string }
	seen := make(map[ident]bool, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		id := ident{t.Source, t.Key}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, t)
	}
	return out
}

// Work は、作品（マンガ・コミックのシリーズ）の正規化済みレコードです。
// Chapters は一覧取得時には nil で、詳細取得後にのみ設定されます。
type Work struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	AltTitle      string    `json:"alt_title,omitempty"`
	URL           string    `json:"url"`        // 正規化済みの相対URL
	PublicURL     string    `json:"public_url"` // 絶対URL
	Author        string    `json:"author,omitempty"`
	CoverURL      string    `json:"cover_url,omitempty"`
	LargeCoverURL string    `json:"large_cover_url,omitempty"`
	Description   string    `json:"description,omitempty"`
	Tags          []Tag     `json:"tags,omitempty"`
	State         State     `json:"state,omitempty"`
	Rating        float32   `json:"rating"`
	NSFW          bool      `json:"nsfw"`
	Source        string    `json:"source"`
	Chapters      []Chapter `json:"chapters,omitempty"`
}

// With は、fn で変更を加えたコピーを返します。元の値は変更されません。
func (w Work) With(fn func(*Work)) Work {
	c := w
	c.Tags = slices.Clone(w.Tags)
	c.Chapters = slices.Clone(w.Chapters)
	fn(&c)
	return c
}

// HasRating は、評価値が既知かどうかを返します。
func (w Work) HasRating() bool {
	return w.Rating >= 0
}

// Chapter は作品の1話分です。Number は1始まりの連番です。
type Chapter struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Number     int       `json:"number"`
	URL        string    `json:"url"`
	Scanlator  string    `json:"scanlator,omitempty"`
	Branch     string    `json:"branch,omitempty"`
	UploadDate int64     `json:"upload_date"` // エポックミリ秒。不明な場合は0
	Source     string    `json:"source"`
}

// Page は、チャプター内の1枚の画像です。キャッシュはされません。
type Page struct {
	ID      uuid.UUID `json:"id"`
	URL     string    `json:"url"`
	Preview string    `json:"preview,omitempty"`
	Source  string    `json:"source"`
}
