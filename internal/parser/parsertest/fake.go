// Package parsertest は、パーサーのテスト用に外部コラボレータの代替実装を提供します。
package parsertest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// Fetcher は、URLごとに固定の本文を返す Fetcher です。取得回数を記録します。
type Fetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	calls  map[string]int
	hook   func(url string)
	called []string
}

// NewFetcher は、空の Fetcher を返します。
func NewFetcher() *Fetcher {
	return &Fetcher{
		pages: make(map[string]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Serve は、url に対して body を返すように設定します。
func (f *Fetcher) Serve(url, body string) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = body
	delete(f.errs, url)
	return f
}

// ServeFile は、testdata 以下のファイルの内容を url に対して返すように設定します。
func (f *Fetcher) ServeFile(t testing.TB, url, name string) *Fetcher {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("テスト用のHTMLファイルの読み込みに失敗しました: %v", err)
	}
	return f.Serve(url, string(b))
}

// Fail は、url に対して err を返すように設定します。
func (f *Fetcher) Fail(url string, err error) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
	return f
}

// OnGet は、取得のたびに呼ばれる関数を設定します。
func (f *Fetcher) OnGet(hook func(url string)) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
	return f
}

// Get は、設定された本文を返します。未設定のURLは 404 相当のエラーになります。
func (f *Fetcher) Get(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls[url]++
	f.called = append(f.called, url)
	hook := f.hook
	body, ok := f.pages[url]
	err := f.errs[url]
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("HTTP 404: Not Found (URL: %s)", url)
	}
	return body, nil
}

// Calls は、url が取得された回数を返します。
func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// Requested は、取得されたURLを順に返します。
func (f *Fetcher) Requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.called...)
}

// Jar は、ドメインごとのCookieを保持する CookieJar です。
type Jar struct {
	mu      sync.Mutex
	cookies map[string][]*http.Cookie
}

// NewJar は、空の Jar を返します。
func NewJar() *Jar {
	return &Jar{cookies: make(map[string][]*http.Cookie)}
}

// Set は、domain にCookieを設定します。
func (j *Jar) Set(domain, name, value string) *Jar {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies[domain] = append(j.cookies[domain], &http.Cookie{Name: name, Value: value})
	return j
}

// Clear は、domain のCookieを全て削除します。
func (j *Jar) Clear(domain string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.cookies, domain)
}

// Cookies は、domain のCookieを返します。
func (j *Jar) Cookies(domain string) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*http.Cookie(nil), j.cookies[domain]...)
}
