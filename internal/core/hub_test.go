package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"GoMangaParsers/internal/catalog"
	"GoMangaParsers/internal/config"
	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/parser"
	"GoMangaParsers/internal/parser/parsertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport は、テスト用の Fetcher と Jar を Transport として束ねます。
type fakeTransport struct {
	*parsertest.Fetcher
	*parsertest.Jar
}

func (f fakeTransport) SetCookie(domain string, c *http.Cookie) error {
	f.Jar.Set(domain, c.Name, c.Value)
	return nil
}

func newTransport() fakeTransport {
	return fakeTransport{Fetcher: parsertest.NewFetcher(), Jar: parsertest.NewJar()}
}

func boolPtr(b bool) *bool { return &b }

func testConfig() *config.Config {
	return &config.Config{
		ConfigVersion: "1.0",
		Sources: []config.Source{
			{Name: "manhuaus", Engine: "madara"},
			{Name: "readmanga", Engine: "grouple", Domain: "readmanga.io", Cookies: map[string]string{"gwt": "token"}},
			{Name: "disabled", Engine: "mangatown", Enabled: boolPtr(false)},
		},
		MaxConcurrentFetches: 2,
	}
}

const madaraReader = `<div class="reading-content"><div class="page-break"><img src="/img/%d/1.jpg"></div><div class="page-break"><img src="/img/%d/2.jpg"></div></div>`

const madaraDetails = `<div class="summary_content"><div class="post-status"><div class="summary-content">OnGoing</div></div></div>
<ul>%s</ul>`

func TestNewHub_RegistersEnabledSources(t *testing.T) {
	// Arrange
	tr := newTransport()

	// Act
	hub, err := NewHub(testConfig(), tr, nil, nil)

	// Assert
	require.NoError(t, err)
	sources := hub.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "manhuaus", sources[0].Name)
	assert.Equal(t, "manhuaus.com", sources[0].DefaultDomain)
	assert.Equal(t, "readmanga.io", sources[1].DefaultDomain)

	_, err = hub.Parser("disabled")
	assert.ErrorIs(t, err, ErrUnknownSource)

	p, err := hub.Parser("readmanga")
	require.NoError(t, err)
	assert.True(t, p.(parser.Authenticator).IsAuthorized(), "設定のCookieはソースのドメインに設定されるべきです")
}

func TestNewHub_UnknownEngine(t *testing.T) {
	cfg := &config.Config{Sources: []config.Source{{Name: "x", Engine: "futaba"}}}

	_, err := NewHub(cfg, newTransport(), nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "futaba")
}

func TestHub_WorkAndSetDomain(t *testing.T) {
	hub, err := NewHub(testConfig(), newTransport(), nil, nil)
	require.NoError(t, err)

	w, err := hub.Work("manhuaus", "https://manhuaus.com/manga/solo/")
	require.NoError(t, err)
	assert.Equal(t, "/manga/solo/", w.URL)
	assert.Equal(t, model.NewID("manhuaus", "/manga/solo/"), w.ID)
	assert.Equal(t, "https://manhuaus.com/manga/solo/", w.PublicURL)

	require.NoError(t, hub.SetDomain("manhuaus", "https://manhuaus.org/"))
	p, _ := hub.Parser("manhuaus")
	assert.Equal(t, "manhuaus.org", p.Domain())
	assert.ErrorIs(t, hub.SetDomain("nope", "x"), ErrUnknownSource)
}

func TestHub_PrefetchPages_OrderedAndBounded(t *testing.T) {
	// Arrange
	tr := newTransport()
	var inFlight, peak atomic.Int32
	tr.OnGet(func(string) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
	})
	var chapters []model.Chapter
	for i := 1; i <= 6; i++ {
		u := fmt.Sprintf("/manga/solo/chapter-%d/", i)
		tr.Serve("https://manhuaus.com"+u, fmt.Sprintf(madaraReader, i, i))
		chapters = append(chapters, model.Chapter{Number: i, URL: u})
	}
	hub, err := NewHub(testConfig(), tr, nil, nil)
	require.NoError(t, err)

	// Act
	results, err := hub.PrefetchPages(context.Background(), "manhuaus", chapters, 2)

	// Assert
	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, pages := range results {
		require.Len(t, pages, 2)
		assert.Equal(t, fmt.Sprintf("https://manhuaus.com/img/%d/1.jpg", i+1), pages[0].URL, "結果は入力と同じ順序であるべきです")
	}
	assert.LessOrEqual(t, peak.Load(), int32(2), "同時取得数は limit を超えないべきです")
	assert.Equal(t, int64(12), hub.Stats().Snapshot().Pages)
}

func TestHub_PrefetchPages_FirstErrorWins(t *testing.T) {
	tr := newTransport()
	tr.Serve("https://manhuaus.com/c/1/", fmt.Sprintf(madaraReader, 1, 1))
	tr.Fail("https://manhuaus.com/c/2/", errors.New("HTTP 503"))
	hub, err := NewHub(testConfig(), tr, nil, nil)
	require.NoError(t, err)

	_, err = hub.PrefetchPages(context.Background(), "manhuaus", []model.Chapter{{Number: 1, URL: "/c/1/"}, {Number: 2, URL: "/c/2/"}}, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.GreaterOrEqual(t, hub.Stats().Snapshot().Failures["pages"], int64(1))
}

func TestHub_WhoAmI(t *testing.T) {
	tr := newTransport()
	tr.Serve("https://readmanga.io/private/index", `<div id="profile"><b class="user-name">reader42</b></div>`)
	hub, err := NewHub(testConfig(), tr, nil, nil)
	require.NoError(t, err)

	acc, err := hub.WhoAmI(context.Background(), "readmanga")
	require.NoError(t, err)
	assert.Equal(t, Account{Source: "readmanga", Authorized: true, Username: "reader42"}, acc)

	_, err = hub.WhoAmI(context.Background(), "manhuaus")
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestHub_WhoAmI_NoSessionSkipsNetwork(t *testing.T) {
	tr := newTransport()
	cfg := testConfig()
	cfg.Sources[1].Cookies = nil
	hub, err := NewHub(cfg, tr, nil, nil)
	require.NoError(t, err)

	acc, err := hub.WhoAmI(context.Background(), "readmanga")

	assert.True(t, parser.IsAuthRequired(err))
	assert.False(t, acc.Authorized)
	assert.Empty(t, tr.Requested())
}

func TestHub_Sync_DetectsNewChapters(t *testing.T) {
	// Arrange
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer store.Close()
	tr := newTransport()
	const workURL = "https://manhuaus.com/manga/solo/"
	tr.Serve(workURL, fmt.Sprintf(madaraDetails,
		`<li class="wp-manga-chapter"><a href="/manga/solo/chapter-1/">Chapter 1</a></li>`))
	hub, err := NewHub(testConfig(), tr, store, nil)
	require.NoError(t, err)
	work, err := hub.Work("manhuaus", workURL)
	require.NoError(t, err)

	// Act & Assert: 初回
	first, err := hub.Sync(context.Background(), "manhuaus", work)
	require.NoError(t, err)
	assert.True(t, first.FirstSeen)
	assert.Len(t, first.NewChapters, 1)

	// Act & Assert: 2回目 (チャプターが1件増えた)
	tr.Serve(workURL, fmt.Sprintf(madaraDetails,
		`<li class="wp-manga-chapter"><a href="/manga/solo/chapter-2/">Chapter 2</a></li>
<li class="wp-manga-chapter"><a href="/manga/solo/chapter-1/">Chapter 1</a></li>`))
	second, err := hub.Sync(context.Background(), "manhuaus", work)
	require.NoError(t, err)
	assert.False(t, second.FirstSeen)
	require.Len(t, second.NewChapters, 1)
	assert.Equal(t, "/manga/solo/chapter-2/", second.NewChapters[0].URL)
	assert.Equal(t, 2, second.NewChapters[0].Number)

	saved, err := store.GetWork(context.Background(), work.ID)
	require.NoError(t, err)
	assert.Len(t, saved.Chapters, 2)
	assert.Equal(t, model.StateOngoing, saved.State)

	// Act & Assert: ソース単位の同期
	results, err := hub.SyncSource(context.Background(), "manhuaus")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].NewChapters)
}

func TestHub_Details_FromURLKeepsTitle(t *testing.T) {
	// Arrange
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer store.Close()
	tr := newTransport()
	const workURL = "https://manhuaus.com/manga/solo/"
	tr.Serve(workURL, `<div class="post-title"><h1>Solo Leveling</h1></div>
<div class="summary_image"><img data-src="/covers/solo.jpg"></div>`+fmt.Sprintf(madaraDetails, ""))
	hub, err := NewHub(testConfig(), tr, store, nil)
	require.NoError(t, err)
	work, err := hub.Work("manhuaus", workURL)
	require.NoError(t, err)
	require.Empty(t, work.Title)

	// Act
	detailed, err := hub.Details(context.Background(), "manhuaus", work)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Solo Leveling", detailed.Title)
	assert.Equal(t, "https://manhuaus.com/covers/solo.jpg", detailed.CoverURL)
	saved, err := store.GetWork(context.Background(), work.ID)
	require.NoError(t, err)
	assert.Equal(t, "Solo Leveling", saved.Title, "カタログにも空でないタイトルが保存されるべきです")
}

func TestHub_Sync_WithoutCatalog(t *testing.T) {
	hub, err := NewHub(testConfig(), newTransport(), nil, nil)
	require.NoError(t, err)

	_, err = hub.Sync(context.Background(), "manhuaus", model.Work{})

	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestSessionStats(t *testing.T) {
	s := newSessionStats()
	s.record(OpList, nil)
	s.record(OpList, errors.New("x"))
	s.works.Add(3)

	snap := s.Snapshot()

	assert.Equal(t, int64(2), snap.Calls["list"])
	assert.Equal(t, int64(1), snap.Failures["list"])
	assert.Equal(t, int64(3), snap.Works)
	assert.Contains(t, s.FormatSessionInfo(), "操作: 2 (失敗 1)")
}
