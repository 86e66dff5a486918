package parser

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/parser/parsertest"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSource = Source{Name: "test", Engine: "test", DefaultDomain: "example.com"}

func newTestListing(paging Paging) *Listing {
	return &Listing{
		Paging:         paging,
		SortKeys:       map[SortOrder]string{SortPopularity: "rate", SortUpdated: "updated"},
		DefaultSortKey: "updated",
		TagSeparator:   ",",
		SearchURL: func(domain, query string, offset int) string {
			return fmt.Sprintf("https://%s/search?q=%s&p=%d", domain, url.QueryEscape(query), offset)
		},
		FilterURL: func(domain, tagKeys, sortKey string, offset int) string {
			return fmt.Sprintf("https://%s/list?tags=%s&sort=%s&p=%d", domain, tagKeys, sortKey, offset)
		},
		BrowseURL: func(domain, sortKey string, offset int) string {
			return fmt.Sprintf("https://%s/list?sort=%s&p=%d", domain, sortKey, offset)
		},
		Container: MustSelector("div.results"),
		Rows:      MustSelector("div.item"),
		MapRow: func(row *goquery.Selection) Row {
			a := row.Find("a.title").First()
			href, _ := a.Attr("href")
			return Row{
				Href:   href,
				Title:  Text(a),
				Cover:  Attr(row.Find("img"), "data-src", "src"),
				Author: Text(row.Find(".author")),
			}
		},
	}
}

const listingHTML = `<html><body><div class="results">
<div class="item"><a class="title" href="/manga/foo">Foo Bar (Alt Name)</a><img data-src="//cdn.example.net/foo.jpg"><span class="author">Ann</span></div>
<div class="item"><span>アンカーなし</span></div>
<div class="item"><a class="title" href="https://example.com/manga/baz">Baz</a></div>
<div class="item"><a class="title" href="/manga/empty">   </a></div>
</div></body></html>`

func TestListing_Target_Priority(t *testing.T) {
	l := newTestListing(ByPage)
	tags := []model.Tag{{Key: "t1"}, {Key: "t2"}}

	target, ok := l.Target("example.com", ListRequest{Offset: 2, Query: "one piece", Tags: tags, Sort: SortPopularity})
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/search?q=one+piece&p=2", target, "検索語はタグより優先されるべきです")

	target, ok = l.Target("example.com", ListRequest{Offset: 1, Tags: tags, Sort: SortPopularity})
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/list?tags=t1,t2&sort=rate&p=1", target)

	target, ok = l.Target("example.com", ListRequest{Sort: SortAlphabetical})
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/list?sort=updated&p=1", target, "未対応の並び順は既定値になるべきです")
}

func TestListing_TagKeysJoinedDeterministically(t *testing.T) {
	l := newTestListing(ByPage)
	tags := []model.Tag{{Key: "t2"}, {Key: "t1"}, {Key: "t2"}}

	assert.Equal(t, "t2,t1", l.JoinTagKeys(tags), "既定では指定順のまま連結します")

	l.SortTagKeys = true
	assert.Equal(t, "t1,t2", l.JoinTagKeys(tags))
	assert.Equal(t, l.JoinTagKeys(tags), l.JoinTagKeys([]model.Tag{{Key: "t1"}, {Key: "t2"}}))
}

func TestListing_QueryWithOffsetOnOffsetSourceSkipsFetch(t *testing.T) {
	// Arrange
	fetcher := parsertest.NewFetcher()
	pc := NewContext(testSource, fetcher, nil, "", nil)
	l := newTestListing(ByOffset)

	// Act
	works, err := l.List(context.Background(), pc, ListRequest{Offset: 70, Query: "naruto"})

	// Assert
	require.NoError(t, err)
	assert.NotNil(t, works)
	assert.Empty(t, works)
	assert.Empty(t, fetcher.Requested(), "取得は一度も行われないべきです")
}

func TestListing_QueryOnFirstOffsetIsFetched(t *testing.T) {
	fetcher := parsertest.NewFetcher().Serve("https://example.com/search?q=naruto&p=0", listingHTML)
	pc := NewContext(testSource, fetcher, nil, "", nil)

	works, err := newTestListing(ByOffset).List(context.Background(), pc, ListRequest{Query: "naruto"})

	require.NoError(t, err)
	assert.Len(t, works, 2)
}

func TestListing_List_MapsRowsAndDropsBrokenOnes(t *testing.T) {
	// Arrange
	fetcher := parsertest.NewFetcher().Serve("https://example.com/list?sort=rate&p=1", listingHTML)
	pc := NewContext(testSource, fetcher, nil, "", nil)

	// Act
	works, err := newTestListing(ByPage).List(context.Background(), pc, ListRequest{Sort: SortPopularity})

	// Assert
	require.NoError(t, err)
	require.Len(t, works, 2, "アンカーやタイトルのない行は除外されるべきです")

	foo := works[0]
	assert.Equal(t, "Foo Bar", foo.Title)
	assert.Equal(t, "Alt Name", foo.AltTitle)
	assert.Equal(t, "/manga/foo", foo.URL)
	assert.Equal(t, "https://example.com/manga/foo", foo.PublicURL)
	assert.Equal(t, "https://cdn.example.net/foo.jpg", foo.CoverURL)
	assert.Equal(t, "Ann", foo.Author)
	assert.Equal(t, model.NewID("test", "/manga/foo"), foo.ID)
	assert.Equal(t, model.RatingUnknown, foo.Rating)
	assert.Nil(t, foo.Chapters)

	baz := works[1]
	assert.Equal(t, "/manga/baz", baz.URL)
	assert.Empty(t, baz.CoverURL, "カバーが取得できなくても行は除外されません")
	assert.Empty(t, baz.Author)
}

func TestListing_List_MissingContainerIsParseError(t *testing.T) {
	fetcher := parsertest.NewFetcher().Serve("https://example.com/list?sort=updated&p=1", "<html><body>maintenance</body></html>")
	pc := NewContext(testSource, fetcher, nil, "", nil)

	_, err := newTestListing(ByPage).List(context.Background(), pc, ListRequest{})

	require.Error(t, err)
	assert.True(t, IsParseError(err))
	assert.False(t, IsAuthRequired(err))
}

func TestListing_List_UsesCurrentDomain(t *testing.T) {
	fetcher := parsertest.NewFetcher().Serve("https://mirror.org/list?sort=updated&p=1", listingHTML)
	pc := NewContext(testSource, fetcher, nil, "", nil)
	pc.SetDomain("https://mirror.org/")

	works, err := newTestListing(ByPage).List(context.Background(), pc, ListRequest{})

	require.NoError(t, err)
	require.Len(t, works, 2)
	assert.Equal(t, "/manga/foo", works[0].URL)
	assert.Equal(t, "https://example.com/manga/baz", works[1].URL, "別ホストへのリンクは絶対URLのまま保持されます")
}

func TestListing_RequiredPolicyIsConfigurable(t *testing.T) {
	fetcher := parsertest.NewFetcher().Serve("https://example.com/list?sort=updated&p=1", listingHTML)
	pc := NewContext(testSource, fetcher, nil, "", nil)
	l := newTestListing(ByPage)
	l.Required = []Field{FieldURL, FieldTitle, FieldCover}

	works, err := l.List(context.Background(), pc, ListRequest{})

	require.NoError(t, err)
	require.Len(t, works, 1)
	assert.Equal(t, "Foo Bar", works[0].Title)
}

func TestListing_SortOrders(t *testing.T) {
	assert.Equal(t, []SortOrder{SortPopularity, SortUpdated}, newTestListing(ByPage).SortOrders())
}

func TestParseSortOrder(t *testing.T) {
	o, err := ParseSortOrder("Rating")
	require.NoError(t, err)
	assert.Equal(t, SortRating, o)

	o, err = ParseSortOrder("")
	require.NoError(t, err)
	assert.Equal(t, SortUpdated, o)

	_, err = ParseSortOrder("random")
	assert.Error(t, err)
}

func TestNormalizeRating(t *testing.T) {
	assert.Equal(t, model.RatingUnknown, NormalizeRating(0, 5))
	assert.InDelta(t, 0.9, NormalizeRating(4.5, 5), 0.0001)
	assert.Equal(t, float32(1), NormalizeRating(12, 10))
}
