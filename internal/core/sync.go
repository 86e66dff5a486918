package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"GoMangaParsers/internal/catalog"
	"GoMangaParsers/internal/model"
)

// ErrNoCatalog は、カタログが設定されていないため同期できないことを示します。
var ErrNoCatalog = errors.New("カタログが設定されていません")

// SyncResult は、1作品の同期結果です。
type SyncResult struct {
	Work model.Work `json:"work"`
	// FirstSeen は、カタログに保存されていなかった作品であることを示します。
	FirstSeen bool `json:"first_seen"`
	// NewChapters は、前回の保存以降に追加されたチャプターです。
	NewChapters []model.Chapter `json:"new_chapters"`
}

// NewChapters は、fresh のうち stored に含まれないチャプターを順序を保って返します。
func NewChapters(stored, fresh []model.Chapter) []model.Chapter {
	known := make(map[string]bool, len(stored))
	for _, c := range stored {
		known[c.ID.String()] = true
	}
	out := []model.Chapter{}
	for _, c := range fresh {
		if !known[c.ID.String()] {
			out = append(out, c)
		}
	}
	return out
}

// Sync は、作品の詳細を取得し、カタログの前回の内容と比較してから保存します。
func (h *Hub) Sync(ctx context.Context, name string, work model.Work) (SyncResult, error) {
	if h.store == nil {
		return SyncResult{}, ErrNoCatalog
	}

	var stored []model.Chapter
	firstSeen := false
	prev, err := h.store.GetWork(ctx, work.ID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		firstSeen = true
	case err != nil:
		h.logger.Printf("WARNING: [%s] カタログの読み込みに失敗しました (url=%s): %v", name, work.URL, err)
		firstSeen = true
	default:
		stored = prev.Chapters
	}

	// Details がカタログへの保存も行う
	detailed, err := h.Details(ctx, name, work)
	if err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{Work: detailed, FirstSeen: firstSeen, NewChapters: NewChapters(stored, detailed.Chapters)}
	if firstSeen {
		h.logger.Printf("INFO: [%s] 新しい作品を登録しました: %s (%d チャプター)", name, detailed.Title, len(detailed.Chapters))
	} else if len(res.NewChapters) > 0 {
		h.logger.Printf("INFO: [%s] %s に %d 件の新しいチャプターがあります", name, detailed.Title, len(res.NewChapters))
	}
	return res, nil
}

// SyncSource は、カタログに保存された name のソースの全作品を並行して同期します。
// 個々の作品の失敗はログに記録し、成功した結果だけを返します。
func (h *Hub) SyncSource(ctx context.Context, name string) ([]SyncResult, error) {
	if h.store == nil {
		return nil, ErrNoCatalog
	}
	if _, err := h.Parser(name); err != nil {
		return nil, err
	}
	works, err := h.store.ListWorks(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("ソース '%s' の作品一覧の読み込みに失敗しました: %w", name, err)
	}
	h.logger.Printf("INFO: [%s] %d 件の作品を同期します", name, len(works))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]SyncResult, 0, len(works))
	)
	semaphore := make(chan struct{}, h.limit)

	for _, w := range works {
		select {
		case <-ctx.Done():
			h.logger.Printf("WARNING: [%s] キャンセルされたため、残りの作品の同期を中止します", name)
			wg.Wait()
			return results, ctx.Err()
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(w model.Work) {
			defer wg.Done()
			defer func() { <-semaphore }()
			res, err := h.Sync(ctx, name, w)
			if err != nil {
				h.logger.Printf("ERROR: [%s] 作品 %s の同期に失敗しました: %v", name, w.URL, err)
				return
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(w)
	}
	wg.Wait()
	return results, nil
}
