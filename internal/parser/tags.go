package parser

import (
	"context"
	"slices"
	"strings"

	"GoMangaParsers/internal/memo"
	"GoMangaParsers/internal/model"
)

// TagMap は、タグ辞書の読み取り専用ビューです。タイトル（小文字化）で引きます。
type TagMap struct {
	byTitle map[string]model.Tag
	ordered []model.Tag
}

// NewTagMap は、tags から TagMap を作ります。同じタイトルが複数ある場合は最初のものを採用します。
func NewTagMap(tags []model.Tag) *TagMap {
	m := &TagMap{byTitle: make(map[string]model.Tag, len(tags))}
	for _, t := range tags {
		k := titleKey(t.Title)
		if k == "" || t.Key == "" {
			continue
		}
		if _, dup := m.byTitle[k]; dup {
			continue
		}
		m.byTitle[k] = t
		m.ordered = append(m.ordered, t)
	}
	slices.SortFunc(m.ordered, func(a, b model.Tag) int {
		return strings.Compare(titleKey(a.Title), titleKey(b.Title))
	})
	return m
}

// Lookup は、タイトルに一致するタグを返します。大文字小文字は区別しません。
func (m *TagMap) Lookup(title string) (model.Tag, bool) {
	t, ok := m.byTitle[titleKey(title)]
	return t, ok
}

// Len は、辞書のタグ数を返します。
func (m *TagMap) Len() int {
	return len(m.ordered)
}

// All は、タイトル順に並べたタグのコピーを返します。
func (m *TagMap) All() []model.Tag {
	return slices.Clone(m.ordered)
}

// Resolve は、タイトルの列をタグに変換します。辞書にないタイトルは黙って除外します。
func (m *TagMap) Resolve(titles []string) []model.Tag {
	var out []model.Tag
	for _, title := range titles {
		if t, ok := m.Lookup(title); ok {
			out = append(out, t)
		}
	}
	return model.UniqueTags(out)
}

// TagDictionary は、サイトのタグ一覧を初回に一度だけ取得して保持します。
// 並行した初回呼び出しでも取得は一度だけ行われ、取得に失敗した場合は次回に再試行します。
type TagDictionary struct {
	lazy *memo.Lazy[*TagMap]
}

// NewTagDictionary は、fetch でタグ一覧を取得する TagDictionary を返します。
func NewTagDictionary(fetch func(ctx context.Context) ([]model.Tag, error)) *TagDictionary {
	return &TagDictionary{
		lazy: memo.New(func(ctx context.Context) (*TagMap, error) {
			tags, err := fetch(ctx)
			if err != nil {
				return nil, err
			}
			return NewTagMap(tags), nil
		}),
	}
}

// Get は、タグ辞書を返します。全ての呼び出し元は同じ *TagMap を受け取ります。
func (d *TagDictionary) Get(ctx context.Context) (*TagMap, error) {
	return d.lazy.Get(ctx)
}

// Tags は、辞書の全タグをタイトル順に返します。
func (d *TagDictionary) Tags(ctx context.Context) ([]model.Tag, error) {
	m, err := d.Get(ctx)
	if err != nil {
		return nil, err
	}
	return m.All(), nil
}

// Resolve は、タイトルの列を辞書のタグに変換します。
func (d *TagDictionary) Resolve(ctx context.Context, titles []string) ([]model.Tag, error) {
	m, err := d.Get(ctx)
	if err != nil {
		return nil, err
	}
	return m.Resolve(titles), nil
}

func titleKey(title string) string {
	return strings.ToLower(collapseSpaces(title))
}
