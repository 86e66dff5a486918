package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/parser"
	"GoMangaParsers/internal/parser/parsertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mangaTownDirectory = "https://www.mangatown.com/directory/"
	mangaTownBrowse    = "https://www.mangatown.com/directory/0-0-0-0-0-0/1.htm?views.za"
)

func TestMangaTown_List_ResolvesTagTitles(t *testing.T) {
	// Arrange
	fetcher := parsertest.NewFetcher().
		ServeFile(t, mangaTownDirectory, "mangatown_directory.html").
		ServeFile(t, mangaTownBrowse, "mangatown_list.html")
	p := newTestParser(t, "mangatown", fetcher, nil)

	// Act
	works, err := p.List(context.Background(), parser.ListRequest{})
	require.NoError(t, err)
	_, err = p.List(context.Background(), parser.ListRequest{})
	require.NoError(t, err)

	// Assert
	require.Len(t, works, 2)
	opm := works[0]
	assert.Equal(t, "Onepunch-Man", opm.Title)
	assert.Equal(t, "/manga/onepunch_man/", opm.URL)
	assert.Equal(t, "ONE", opm.Author)
	assert.Equal(t, "https://fmcdn.mangahere.com/store/manga/11362/cover.jpg", opm.CoverURL)
	assert.InDelta(t, 0.95, opm.Rating, 0.001)
	assert.Equal(t, []model.Tag{
		{Title: "Action", Key: "action", Source: "test-mangatown"},
		{Title: "Comedy", Key: "comedy", Source: "test-mangatown"},
	}, opm.Tags, "辞書にないタグ名は除外されるべきです")

	assert.Equal(t, "/manga/vagabond/", works[1].URL)
	assert.False(t, works[1].HasRating())

	assert.Equal(t, 1, fetcher.Calls(mangaTownDirectory), "タグ辞書は一度だけ取得されるべきです")
	assert.Equal(t, 2, fetcher.Calls(mangaTownBrowse))
}

func TestMangaTown_List_WithoutTagDictionary(t *testing.T) {
	fetcher := parsertest.NewFetcher().
		Fail(mangaTownDirectory, errors.New("HTTP 503")).
		ServeFile(t, mangaTownBrowse, "mangatown_list.html")
	p := newTestParser(t, "mangatown", fetcher, nil)

	works, err := p.List(context.Background(), parser.ListRequest{})

	require.NoError(t, err)
	require.Len(t, works, 2)
	assert.Empty(t, works[0].Tags)
}

func TestMangaTown_List_TagKeysJoinedInOrder(t *testing.T) {
	const want = "https://www.mangatown.com/directory/comedy-action/2.htm?rating.za"
	fetcher := parsertest.NewFetcher().
		ServeFile(t, mangaTownDirectory, "mangatown_directory.html").
		ServeFile(t, want, "mangatown_list.html")
	p := newTestParser(t, "mangatown", fetcher, nil)

	_, err := p.List(context.Background(), parser.ListRequest{
		Offset: 2,
		Tags:   []model.Tag{{Key: "comedy"}, {Key: "action"}},
		Sort:   parser.SortRating,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.Calls(want))
}

func TestMangaTown_SortOrders(t *testing.T) {
	p := newTestParser(t, "mangatown", parsertest.NewFetcher(), nil)

	assert.Equal(t, []parser.SortOrder{
		parser.SortPopularity, parser.SortAlphabetical, parser.SortUpdated, parser.SortRating,
	}, p.SortOrders())
}

func TestMangaTown_Details(t *testing.T) {
	// Arrange
	fetcher := parsertest.NewFetcher().
		ServeFile(t, "https://www.mangatown.com/manga/onepunch_man/", "mangatown_details.html")
	p := newTestParser(t, "mangatown", fetcher, nil)
	work := model.Work{ID: model.NewID("test-mangatown", "/manga/onepunch_man/"), URL: "/manga/onepunch_man/"}

	// Act
	got, err := p.Details(context.Background(), work)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, work.ID, got.ID)
	assert.Equal(t, "ONE", got.Author)
	assert.Equal(t, model.StateOngoing, got.State)
	assert.Equal(t, "Saitama is a superhero who can defeat any opponent with a single punch.", got.Description)
	assert.Equal(t, "https://fmcdn.mangahere.com/store/manga/11362/cover_large.jpg", got.LargeCoverURL)
	assert.Equal(t, "Onepunch-Man", got.Title, "URLだけの作品には見出しのタイトルが補われるべきです")
	assert.Equal(t, got.LargeCoverURL, got.CoverURL)
	assert.Len(t, got.Tags, 2)

	require.Len(t, got.Chapters, 2)
	assert.Equal(t, "Onepunch-Man 1", got.Chapters[0].Name)
	assert.Equal(t, time.Date(2016, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli(), got.Chapters[0].UploadDate)
	assert.Equal(t, "Onepunch-Man 2 Crab", got.Chapters[1].Name)
	assert.Equal(t, 2, got.Chapters[1].Number)
}

func TestMangaTown_PagesAndResolve(t *testing.T) {
	// Arrange
	fetcher := parsertest.NewFetcher().
		ServeFile(t, "https://www.mangatown.com/manga/onepunch_man/c001/", "mangatown_chapter.html").
		ServeFile(t, "https://www.mangatown.com/manga/onepunch_man/c001/2.html", "mangatown_page.html")
	p := newTestParser(t, "mangatown", fetcher, nil)

	// Act
	pages, err := p.Pages(context.Background(), model.Chapter{URL: "/manga/onepunch_man/c001/"})
	require.NoError(t, err)

	// Assert
	require.Len(t, pages, 3, "重複やコメント欄への選択肢は除外されるべきです")
	assert.Equal(t, "https://www.mangatown.com/manga/onepunch_man/c001/2.html", pages[1].URL)

	img, err := parser.ResolvePageURL(context.Background(), p, pages[1])
	require.NoError(t, err)
	assert.Equal(t, "https://zjcdn.mangahere.org/store/manga/11362/001.0/compressed/m002.jpg", img)
}

func TestMangaTown_ResolvePage_MissingImage(t *testing.T) {
	fetcher := parsertest.NewFetcher().
		Serve("https://www.mangatown.com/manga/x/c001/2.html", `<html><body>removed</body></html>`)
	p := newTestParser(t, "mangatown", fetcher, nil)

	_, err := parser.ResolvePageURL(context.Background(), p, model.Page{URL: "https://www.mangatown.com/manga/x/c001/2.html"})

	assert.True(t, parser.IsParseError(err))
}
