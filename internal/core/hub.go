// Package core は、設定からソースごとのパーサーを組み立て、
// アプリケーションの各操作を中継する中核部分を実装します。
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"GoMangaParsers/internal/adapter"
	"GoMangaParsers/internal/catalog"
	"GoMangaParsers/internal/config"
	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/parser"
	"GoMangaParsers/internal/urlnorm"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnknownSource は、指定された名前のソースが設定されていないことを示します。
	ErrUnknownSource = errors.New("ソースが見つかりません")
	// ErrNotSupported は、ソースがその操作に対応していないことを示します。
	ErrNotSupported = errors.New("このソースは対応していません")
)

// Transport は、パーサーが利用するHTTP取得とCookie管理です。
// network.Client が実装します。
type Transport interface {
	parser.Fetcher
	parser.CookieJar
	SetCookie(domain string, cookie *http.Cookie) error
}

// Hub は、有効なソースごとに1つのパーサーを保持します。
// 構築後のソースの集合は変更されないため、並行して利用できます。
type Hub struct {
	transport Transport
	store     *catalog.Store
	logger    *log.Logger
	limit     int

	order    []string
	parsers  map[string]parser.Parser
	contexts map[string]*parser.Context
	stats    *SessionStats
}

// NewHub は、設定の有効なソースからパーサーを生成します。
// store が nil の場合、詳細の取得結果はカタログに保存されません。
func NewHub(cfg *config.Config, transport Transport, store *catalog.Store, logger *log.Logger) (*Hub, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := cfg.ValidateEngines(adapter.IsKnownEngine); err != nil {
		return nil, err
	}

	limit := cfg.MaxConcurrentFetches
	if limit <= 0 {
		limit = 4
	}
	h := &Hub{
		transport: transport,
		store:     store,
		logger:    logger,
		limit:     limit,
		parsers:   make(map[string]parser.Parser),
		contexts:  make(map[string]*parser.Context),
		stats:     newSessionStats(),
	}

	for _, sc := range cfg.EnabledSources() {
		source, err := adapter.NewSource(sc.Name, sc.Engine, sc.Domain)
		if err != nil {
			return nil, err
		}
		sourceLogger := log.New(logger.Writer(), fmt.Sprintf("[%s] ", sc.Name), logger.Flags())
		pc := parser.NewContext(source, transport, transport, "", sourceLogger)

		for name, value := range sc.Cookies {
			cookie := &http.Cookie{Name: name, Value: value, Path: "/"}
			if err := transport.SetCookie(pc.Domain(), cookie); err != nil {
				return nil, fmt.Errorf("ソース '%s' のCookie設定に失敗しました: %w", sc.Name, err)
			}
		}

		p, err := adapter.GetAdapter(sc.Engine, pc)
		if err != nil {
			return nil, err
		}
		h.order = append(h.order, sc.Name)
		h.parsers[sc.Name] = p
		h.contexts[sc.Name] = pc
		logger.Printf("INFO: ソース '%s' を登録しました (engine=%s, domain=%s)", sc.Name, sc.Engine, pc.Domain())
	}
	return h, nil
}

// Sources は、登録されたソースを設定ファイルの定義順に返します。
func (h *Hub) Sources() []parser.Source {
	out := make([]parser.Source, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.parsers[name].Source())
	}
	return out
}

// Parser は、name のパーサーを返します。
func (h *Hub) Parser(name string) (parser.Parser, error) {
	p, ok := h.parsers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return p, nil
}

// SetDomain は、name のソースのドメインを変更します。実行中の操作には影響しません。
func (h *Hub) SetDomain(name, domain string) error {
	pc, ok := h.contexts[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	pc.SetDomain(domain)
	h.logger.Printf("INFO: ソース '%s' のドメインを %s に変更しました", name, pc.Domain())
	return nil
}

// Stats は、セッションの統計情報を返します。
func (h *Hub) Stats() *SessionStats {
	return h.stats
}

// List は、name のソースの一覧を1ページ分取得します。
func (h *Hub) List(ctx context.Context, name string, req parser.ListRequest) ([]model.Work, error) {
	p, err := h.Parser(name)
	if err != nil {
		return nil, err
	}
	works, err := p.List(ctx, req)
	h.stats.record(OpList, err)
	if err != nil {
		h.logger.Printf("ERROR: [%s] 一覧の取得に失敗しました: %v", name, err)
		return nil, err
	}
	h.stats.works.Add(int64(len(works)))
	return works, nil
}

// Tags は、name のソースのタグ一覧を返します。
func (h *Hub) Tags(ctx context.Context, name string) ([]model.Tag, error) {
	p, err := h.Parser(name)
	if err != nil {
		return nil, err
	}
	tags, err := p.Tags(ctx)
	h.stats.record(OpTags, err)
	if err != nil {
		h.logger.Printf("ERROR: [%s] タグ一覧の取得に失敗しました: %v", name, err)
	}
	return tags, err
}

// ResolveTags は、タグのキーまたはタイトルを name のソースのタグに変換します。
// 見つからないものは除外されます。
func (h *Hub) ResolveTags(ctx context.Context, name string, keysOrTitles []string) ([]model.Tag, error) {
	if len(keysOrTitles) == 0 {
		return nil, nil
	}
	all, err := h.Tags(ctx, name)
	if err != nil {
		return nil, err
	}
	byTitle := parser.NewTagMap(all)
	var out []model.Tag
	for _, s := range keysOrTitles {
		if t, ok := byTitle.Lookup(s); ok {
			out = append(out, t)
			continue
		}
		for _, t := range all {
			if t.Key == s {
				out = append(out, t)
				break
			}
		}
	}
	return model.UniqueTags(out), nil
}

// Work は、作品ページのURLから、詳細取得の起点となる作品を組み立てます。
func (h *Hub) Work(name, rawURL string) (model.Work, error) {
	p, err := h.Parser(name)
	if err != nil {
		return model.Work{}, err
	}
	domain := p.Domain()
	rel := urlnorm.ToRelative(domain, rawURL)
	return model.Work{
		ID:        model.NewID(name, rel),
		URL:       rel,
		PublicURL: urlnorm.ToAbsolute(domain, rel),
		Rating:    model.RatingUnknown,
		Source:    name,
	}, nil
}

// Chapter は、チャプターのURLからページ取得の起点となるチャプターを組み立てます。
func (h *Hub) Chapter(name, rawURL string) (model.Chapter, error) {
	p, err := h.Parser(name)
	if err != nil {
		return model.Chapter{}, err
	}
	rel := urlnorm.ToRelative(p.Domain(), rawURL)
	return model.Chapter{ID: model.NewID(name, rel), URL: rel, Source: name}, nil
}

// Details は、作品の詳細を取得します。カタログが設定されていれば保存します。
func (h *Hub) Details(ctx context.Context, name string, work model.Work) (model.Work, error) {
	p, err := h.Parser(name)
	if err != nil {
		return model.Work{}, err
	}
	detailed, err := p.Details(ctx, work)
	h.stats.record(OpDetails, err)
	if err != nil {
		h.logger.Printf("ERROR: [%s] 詳細の取得に失敗しました (url=%s): %v", name, work.URL, err)
		return model.Work{}, err
	}
	if h.store != nil {
		if err := h.store.SaveWork(ctx, detailed); err != nil {
			h.logger.Printf("WARNING: [%s] カタログへの保存に失敗しました (url=%s): %v", name, work.URL, err)
		}
	}
	return detailed, nil
}

// Pages は、チャプターのページ一覧を返します。resolve が true で、ソースが
// PageResolver を実装している場合は、各ページの画像URLを並行して解決します。
func (h *Hub) Pages(ctx context.Context, name string, chapter model.Chapter, resolve bool) ([]model.Page, error) {
	p, err := h.Parser(name)
	if err != nil {
		return nil, err
	}
	pages, err := p.Pages(ctx, chapter)
	if err == nil && resolve {
		pages, err = h.resolvePages(ctx, p, pages)
	}
	h.stats.record(OpPages, err)
	if err != nil {
		h.logger.Printf("ERROR: [%s] ページ一覧の取得に失敗しました (url=%s): %v", name, chapter.URL, err)
		return nil, err
	}
	h.stats.pages.Add(int64(len(pages)))
	return pages, nil
}

func (h *Hub) resolvePages(ctx context.Context, p parser.Parser, pages []model.Page) ([]model.Page, error) {
	if _, ok := p.(parser.PageResolver); !ok {
		return pages, nil
	}
	resolved := make([]model.Page, len(pages))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.limit)
	for i, page := range pages {
		g.Go(func() error {
			u, err := parser.ResolvePageURL(ctx, p, page)
			if err != nil {
				return err
			}
			page.Preview = page.URL
			page.URL = u
			resolved[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// PrefetchPages は、複数のチャプターのページ一覧を最大 limit 件ずつ並行して取得します。
// 結果は chapters と同じ順序で返します。いずれかが失敗した場合は最初のエラーを返します。
func (h *Hub) PrefetchPages(ctx context.Context, name string, chapters []model.Chapter, limit int) ([][]model.Page, error) {
	p, err := h.Parser(name)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = h.limit
	}
	results := make([][]model.Page, len(chapters))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ch := range chapters {
		g.Go(func() error {
			pages, err := p.Pages(ctx, ch)
			h.stats.record(OpPages, err)
			if err != nil {
				return fmt.Errorf("チャプター %d (%s) のページ取得に失敗しました: %w", ch.Number, ch.URL, err)
			}
			h.stats.pages.Add(int64(len(pages)))
			results[i] = pages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.logger.Printf("ERROR: [%s] ページの先読みに失敗しました: %v", name, err)
		return nil, err
	}
	return results, nil
}

// Account は、ソースのログイン状態です。
type Account struct {
	Source     string `json:"source"`
	Authorized bool   `json:"authorized"`
	Username   string `json:"username,omitempty"`
}

// WhoAmI は、name のソースのログイン状態とユーザー名を返します。
// セッションCookieがない場合は通信せずに *parser.AuthRequiredError を返します。
func (h *Hub) WhoAmI(ctx context.Context, name string) (Account, error) {
	p, err := h.Parser(name)
	if err != nil {
		return Account{}, err
	}
	auth, ok := p.(parser.Authenticator)
	if !ok {
		return Account{}, fmt.Errorf("%w: ログイン (%s)", ErrNotSupported, name)
	}
	acc := Account{Source: name, Authorized: auth.IsAuthorized()}
	if !acc.Authorized {
		err := &parser.AuthRequiredError{Source: name, Domain: p.Domain()}
		h.stats.record(OpAuth, err)
		return acc, err
	}
	acc.Username, err = auth.Username(ctx)
	h.stats.record(OpAuth, err)
	if err != nil {
		return acc, err
	}
	return acc, nil
}
