package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"GoMangaParsers/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleWork() model.Work {
	const source = "readmanga"
	return model.Work{
		ID:          model.NewID(source, "/berserk"),
		Title:       "Берсерк",
		AltTitle:    "Berserk",
		URL:         "/berserk",
		PublicURL:   "https://readmanga.live/berserk",
		Author:      "Миура Кэнтаро",
		Description: "Гатс",
		State:       model.StateOngoing,
		Rating:      0.95,
		NSFW:        true,
		Source:      source,
		Tags: []model.Tag{
			{Title: "Боевик", Key: "action", Source: source},
			{Title: "Драма", Key: "drama", Source: source},
		},
		Chapters: []model.Chapter{
			{ID: model.NewID(source, "/berserk/vol1/1"), Name: "1", Number: 1, URL: "/berserk/vol1/1", Source: source, UploadDate: 1104537600000},
			{ID: model.NewID(source, "/berserk/vol1/2"), Name: "2", Number: 2, URL: "/berserk/vol1/2", Source: source, Scanlator: "Team"},
		},
	}
}

func TestStore_SaveAndGetWork(t *testing.T) {
	// Arrange
	s := openTestStore(t)
	ctx := context.Background()
	w := sampleWork()

	// Act
	require.NoError(t, s.SaveWork(ctx, w))
	got, err := s.GetWork(ctx, w.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestStore_SaveWork_Upsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	w := sampleWork()
	require.NoError(t, s.SaveWork(ctx, w))

	// 一覧から得た作品はチャプターを持たないため、保存済みのチャプターは残る
	listed := w.With(func(w *model.Work) {
		w.Title = "Berserk"
		w.Tags = w.Tags[:1]
		w.Chapters = nil
	})
	require.NoError(t, s.SaveWork(ctx, listed))

	got, err := s.GetWork(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Berserk", got.Title)
	assert.Len(t, got.Tags, 1)
	assert.Len(t, got.Chapters, 2)

	// 詳細取得後はチャプターが置き換わる
	detailed := w.With(func(w *model.Work) { w.Chapters = w.Chapters[:1] })
	require.NoError(t, s.SaveWork(ctx, detailed))
	got, err = s.GetWork(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, got.Chapters, 1)
}

func TestStore_GetWork_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetWork(context.Background(), model.NewID("x", "/none"))

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	w := sampleWork()
	other := model.Work{ID: model.NewID("readmanga", "/akira"), Title: "Akira", URL: "/akira", Source: "readmanga", Rating: model.RatingUnknown}
	foreign := model.Work{ID: model.NewID("manhuaus", "/x"), Title: "X", URL: "/x", Source: "manhuaus"}
	for _, work := range []model.Work{w, other, foreign} {
		require.NoError(t, s.SaveWork(ctx, work))
	}

	works, err := s.ListWorks(ctx, "readmanga")
	require.NoError(t, err)
	require.Len(t, works, 2)
	assert.Equal(t, "Akira", works[0].Title, "タイトル順に並ぶべきです")
	assert.False(t, works[0].HasRating())
	assert.Len(t, works[1].Tags, 2)
	assert.Nil(t, works[1].Chapters)

	require.NoError(t, s.DeleteWork(ctx, w.ID))
	_, err = s.GetWork(ctx, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteWork(ctx, w.ID), ErrNotFound)

	var chapters int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM chapters`).Scan(&chapters))
	assert.Zero(t, chapters, "チャプターは作品と共に削除されるべきです")
}
