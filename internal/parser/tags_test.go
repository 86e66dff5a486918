package parser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"GoMangaParsers/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleTags = []model.Tag{
	{Title: "Action", Key: "action", Source: "test"},
	{Title: "Slice Of Life", Key: "slice_of_life", Source: "test"},
	{Title: "Comedy", Key: "12", Source: "test"},
}

func TestTagDictionary_ConcurrentFirstCallsFetchOnce(t *testing.T) {
	// Arrange
	var fetches atomic.Int32
	dict := NewTagDictionary(func(ctx context.Context) ([]model.Tag, error) {
		fetches.Add(1)
		time.Sleep(30 * time.Millisecond)
		return sampleTags, nil
	})

	// Act
	const n = 16
	maps := make([]*TagMap, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := dict.Get(context.Background())
			assert.NoError(t, err)
			maps[i] = m
		}(i)
	}
	wg.Wait()

	// Assert
	assert.Equal(t, int32(1), fetches.Load(), "タグ一覧の取得は一度だけ行われるべきです")
	for i := 1; i < n; i++ {
		assert.Same(t, maps[0], maps[i])
	}

	_, err := dict.Tags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetches.Load(), "2回目以降はメモリから返されるべきです")
}

func TestTagDictionary_FailureIsNotCached(t *testing.T) {
	var fetches atomic.Int32
	dict := NewTagDictionary(func(ctx context.Context) ([]model.Tag, error) {
		if fetches.Add(1) == 1 {
			return nil, errors.New("network down")
		}
		return sampleTags, nil
	})

	_, err := dict.Get(context.Background())
	require.Error(t, err)

	tags, err := dict.Tags(context.Background())
	require.NoError(t, err)
	assert.Len(t, tags, 3)
	assert.Equal(t, int32(2), fetches.Load(), "失敗後の呼び出しでは再取得されるべきです")
}

func TestTagMap_LookupAndResolve(t *testing.T) {
	m := NewTagMap(sampleTags)

	tag, ok := m.Lookup("  slice of LIFE ")
	require.True(t, ok)
	assert.Equal(t, "slice_of_life", tag.Key)

	resolved := m.Resolve([]string{"comedy", "Unknown Genre", "ACTION", "Comedy"})
	assert.Equal(t, []model.Tag{sampleTags[2], sampleTags[0]}, resolved, "辞書にないタグは除外され、重複はまとめられます")

	all := m.All()
	assert.Equal(t, []string{"Action", "Comedy", "Slice Of Life"}, []string{all[0].Title, all[1].Title, all[2].Title})
	all[0].Title = "mutated"
	again, _ := m.Lookup("action")
	assert.Equal(t, "Action", again.Title, "All の結果を変更しても辞書には影響しません")
}

func TestTagTitle(t *testing.T) {
	assert.Equal(t, "Slice Of Life", TagTitle("slice_of_life"))
	assert.Equal(t, "Martial Arts", TagTitle("  martial   arts "))
	assert.Equal(t, "", TagTitle("__"))
}
