package parser

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"GoMangaParsers/internal/urlnorm"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher は、HTTP GET でドキュメント本文を取得する外部コラボレータです。
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

// CookieJar は、ドメインごとのCookieを参照する外部コラボレータです。
type CookieJar interface {
	Cookies(domain string) []*http.Cookie
}

// Source は、パーサーが結び付く論理的なサイトの識別情報です。
type Source struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	Engine        string `json:"engine"`
	Locale        string `json:"locale,omitempty"`
	DefaultDomain string `json:"default_domain"`
	NSFW          bool   `json:"nsfw"`
}

// Context は、1つのパーサーインスタンスが利用するコラボレータと設定をまとめます。
// ドメインはミラー切り替えのために実行中でも変更できます。
type Context struct {
	Source  Source
	Fetcher Fetcher
	Cookies CookieJar
	Logger  *log.Logger

	domain atomic.Pointer[string]
}

// NewContext は、source に結び付いた Context を返します。
// domain が空の場合は source.DefaultDomain を使用します。
func NewContext(source Source, fetcher Fetcher, cookies CookieJar, domain string, logger *log.Logger) *Context {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	pc := &Context{
		Source:  source,
		Fetcher: fetcher,
		Cookies: cookies,
		Logger:  logger,
	}
	if domain == "" {
		domain = source.DefaultDomain
	}
	pc.SetDomain(domain)
	return pc
}

// Domain は、現在のドメインを返します。各操作は開始時に一度だけ読み取ります。
func (c *Context) Domain() string {
	if d := c.domain.Load(); d != nil {
		return *d
	}
	return c.Source.DefaultDomain
}

// SetDomain は、ドメインを変更します。
func (c *Context) SetDomain(domain string) {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimSuffix(domain, "/")
	c.domain.Store(&domain)
}

// Document は、URLを絶対化して取得し、goquery.Document として返します。
func (c *Context) Document(ctx context.Context, domain, rawURL string) (*goquery.Document, error) {
	abs := urlnorm.ToAbsolute(domain, rawURL)
	body, err := c.Fetcher.Get(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗しました (source=%s, url=%s): %w", c.Source.Name, abs, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &ParseError{Source: c.Source.Name, URL: abs, What: "HTML", Err: err}
	}
	return doc, nil
}

// Cookie は、domain に設定された name のCookieの値を返します。
func (c *Context) Cookie(domain, name string) (string, bool) {
	if c.Cookies == nil {
		return "", false
	}
	for _, ck := range c.Cookies.Cookies(domain) {
		if ck.Name == name && ck.Value != "" {
			return ck.Value, true
		}
	}
	return "", false
}
