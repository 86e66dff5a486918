// Package network は、パーサーが利用するHTTP通信とCookie管理を提供します。
// Cookie Jarによるセッション管理をカプセル化した、より高レベルな
// HTTPクライアントを実装しています。
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"GoMangaParsers/internal/config"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

// HTTPError は、HTTPリクエストで発生したエラーとステータスコードを保持します。
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsRetryable は、このエラーがリトライ可能かどうかを判定します。
// 4xxエラー（クライアントエラー）はリトライ不可、5xxエラー（サーバーエラー）はリトライ可能とします。
func (e *HTTPError) IsRetryable() bool {
	// 429 Too Many Requests は待てば回復する
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return false
	}
	return true
}

// Client は、Cookie Jarを内包し、HTTPセッションを管理するクライアントです。
// parser.Fetcher と parser.CookieJar を実装します。
type Client struct {
	httpClient         *http.Client
	jar                *cookiejar.Jar
	userAgent          string
	defaultHeaders     map[string]string
	rateLimiters       map[string]*rate.Limiter // ホスト名ごとのレートリミッター
	rateLimitersMutex  sync.Mutex               // rateLimitersへのアクセスを保護するMutex
	perDomainIntervals map[string]int           // ドメインごとの設定間隔
	retryCount         int
	retryWait          time.Duration
	logger             *log.Logger
}

// NewClient は NetworkSettings に基づいて HTTP クライアントを初期化し、
// ドメインごとのレートリミッターを設定します。
func NewClient(settings config.NetworkSettings, logger *log.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jarの作成に失敗しました: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	timeout := time.Duration(settings.RequestTimeoutMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second // デフォルトタイムアウト
	}

	rateLimiters := make(map[string]*rate.Limiter)
	for domain, intervalMillis := range settings.PerDomainIntervalMillis {
		if intervalMillis <= 0 {
			continue
		}
		// intervalMillis 毎に 1 リクエストを許可する limiter
		rateLimiters[domain] = rate.NewLimiter(rate.Every(time.Duration(intervalMillis)*time.Millisecond), 1)
	}

	retryWait := time.Duration(settings.RetryWaitMillis) * time.Millisecond
	if retryWait <= 0 {
		retryWait = time.Second
	}

	return &Client{
		httpClient:         &http.Client{Jar: jar, Timeout: timeout},
		jar:                jar,
		userAgent:          settings.UserAgent,
		defaultHeaders:     settings.DefaultHeaders,
		rateLimiters:       rateLimiters,
		perDomainIntervals: settings.PerDomainIntervalMillis,
		retryCount:         settings.RetryCount,
		retryWait:          retryWait,
		logger:             logger,
	}, nil
}

// SetCookie は、指定されたURLのドメインに対して、任意のCookieを設定します。
func (c *Client) SetCookie(domainURL string, cookie *http.Cookie) error {
	parsedURL, err := domainToURL(domainURL)
	if err != nil {
		return fmt.Errorf("Cookie設定のためのURL解析に失敗しました: %w", err)
	}
	c.jar.SetCookies(parsedURL, []*http.Cookie{cookie})
	return nil
}

// Cookies は、指定されたドメインに送信されるCookieを返します。
func (c *Client) Cookies(domain string) []*http.Cookie {
	parsedURL, err := domainToURL(domain)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(parsedURL)
}

// Get は、設定済みのCookieを使って指定されたURLにGETリクエストを送信し、
// レスポンスボディをUTF-8の文字列として返します。
// リトライ可能なエラーは retryCount 回まで再試行します。
func (c *Client) Get(ctx context.Context, reqURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			c.logger.Printf("WARNING: リクエストを再試行します (%d/%d, url=%s): %v", attempt, c.retryCount, reqURL, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryWait * time.Duration(attempt)):
			}
		}
		body, err := c.get(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.IsRetryable() {
			return "", err
		}
		if ctx.Err() != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) get(ctx context.Context, reqURL string) (string, error) {
	parsedURL, err := url.Parse(reqURL)
	if err != nil {
		return "", fmt.Errorf("リクエストURLの解析に失敗しました (%s): %w", reqURL, err)
	}

	limiter := c.getLimiterForHost(parsedURL.Hostname())
	if err := limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("レートリミッター待機中にエラーが発生しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("GETリクエストの作成に失敗しました (%s): %w", reqURL, err)
	}
	for key, value := range c.defaultHeaders {
		req.Header.Set(key, value)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("GETリクエストの送信に失敗しました (%s): %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        reqURL,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(decodeBody(resp.Body, resp.Header.Get("Content-Type")))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}
	return string(body), nil
}

// decodeBody は、Content-Type の charset に従って本文をUTF-8に変換します。
// charset が未指定・不明・UTF-8の場合はそのまま返します。
func decodeBody(r io.Reader, contentType string) io.Reader {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return r
	}
	name := strings.ToLower(params["charset"])
	if name == "" || name == "utf-8" || name == "utf8" {
		return r
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}

// getLimiterForHost は、指定されたホスト名に対応するレートリミッターを返します。
// 存在しない場合は新しく生成します。
func (c *Client) getLimiterForHost(host string) *rate.Limiter {
	c.rateLimitersMutex.Lock()
	defer c.rateLimitersMutex.Unlock()

	if limiter, exists := c.rateLimiters[host]; exists {
		return limiter
	}

	// 設定された間隔、またはデフォルトの1000ms間隔で新しいリミッターを生成
	intervalMillis := 1000
	if val, ok := c.perDomainIntervals[host]; ok && val > 0 {
		intervalMillis = val
	}
	newLimiter := rate.NewLimiter(rate.Every(time.Duration(intervalMillis)*time.Millisecond), 1)
	c.rateLimiters[host] = newLimiter
	return newLimiter
}

func domainToURL(domain string) (*url.URL, error) {
	if !strings.HasPrefix(domain, "http") {
		domain = "https://" + domain
	}
	return url.Parse(domain)
}
