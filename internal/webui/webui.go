// Package webui は、Hub の操作をJSON APIとして公開するWebサーバーを実装します。
package webui

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"GoMangaParsers/internal/core"
	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/parser"

	"github.com/gin-gonic/gin"
)

//go:embed embed/index.html
var indexHTML []byte

// Server は、Hub を背後に持つWeb UIサーバーです。
type Server struct {
	hub    *core.Hub
	logger *log.Logger
	engine *gin.Engine

	mu       sync.Mutex
	shutdown chan struct{} // /api/shutdown で閉じられます
	closed   bool
}

// New は、hub を公開する Server を生成します。
func New(hub *core.Hub, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		hub:      hub,
		logger:   logger,
		engine:   gin.New(),
		shutdown: make(chan struct{}),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s
}

// Handler は、テストや他のサーバーに組み込むための http.Handler を返します。
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})

	api := s.engine.Group("/api")
	api.GET("/sources", s.handleSources)
	api.GET("/status", s.handleStatus)
	api.POST("/shutdown", s.handleShutdown)

	src := api.Group("/sources/:name")
	src.GET("/list", s.handleList)
	src.GET("/tags", s.handleTags)
	src.GET("/details", s.handleDetails)
	src.GET("/pages", s.handlePages)
	src.GET("/whoami", s.handleWhoAmI)
	src.POST("/sync", s.handleSync)
	src.PUT("/domain", s.handleDomain)
}

// requestLogger は、リクエストごとに1行のDEBUGログを出力します。
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Printf("DEBUG: %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

type sourceView struct {
	Name       string             `json:"name"`
	Title      string             `json:"title"`
	Engine     string             `json:"engine"`
	Domain     string             `json:"domain"`
	SortOrders []parser.SortOrder `json:"sort_orders"`
	Login      bool               `json:"login"`
}

func (s *Server) handleSources(c *gin.Context) {
	sources := s.hub.Sources()
	out := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		p, err := s.hub.Parser(src.Name)
		if err != nil {
			continue
		}
		_, login := p.(parser.Authenticator)
		out = append(out, sourceView{
			Name:       src.Name,
			Title:      src.Title,
			Engine:     src.Engine,
			Domain:     p.Domain(),
			SortOrders: p.SortOrders(),
			Login:      login,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleStatus(c *gin.Context) {
	stats := s.hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"summary": stats.FormatSessionInfo(),
		"stats":   stats.Snapshot(),
	})
}

func (s *Server) handleList(c *gin.Context) {
	name := c.Param("name")
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		writeError(c, err)
		return
	}
	sort, err := parser.ParseSortOrder(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// tags=a,b または tags=a&tags=b
	var keys []string
	for _, v := range c.QueryArray("tags") {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	tags, err := s.hub.ResolveTags(c.Request.Context(), name, keys)
	if err != nil {
		writeError(c, err)
		return
	}

	works, err := s.hub.List(c.Request.Context(), name, parser.ListRequest{
		Offset: offset,
		Query:  c.Query("q"),
		Tags:   tags,
		Sort:   sort,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if works == nil {
		works = []model.Work{}
	}
	c.JSON(http.StatusOK, gin.H{"offset": offset, "items": works})
}

func (s *Server) handleTags(c *gin.Context) {
	tags, err := s.hub.Tags(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

func (s *Server) handleDetails(c *gin.Context) {
	name := c.Param("name")
	rawURL, ok := requireQuery(c, "url")
	if !ok {
		return
	}
	work, err := s.hub.Work(name, rawURL)
	if err != nil {
		writeError(c, err)
		return
	}
	detailed, err := s.hub.Details(c.Request.Context(), name, work)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detailed)
}

func (s *Server) handlePages(c *gin.Context) {
	name := c.Param("name")
	rawURL, ok := requireQuery(c, "url")
	if !ok {
		return
	}
	chapter, err := s.hub.Chapter(name, rawURL)
	if err != nil {
		writeError(c, err)
		return
	}
	resolve, _ := strconv.ParseBool(c.DefaultQuery("resolve", "false"))
	pages, err := s.hub.Pages(c.Request.Context(), name, chapter, resolve)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pages)
}

func (s *Server) handleWhoAmI(c *gin.Context) {
	acc, err := s.hub.WhoAmI(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// handleSync は、url が指定されればその作品を、なければカタログ上のソース全体を同期します。
func (s *Server) handleSync(c *gin.Context) {
	name := c.Param("name")
	rawURL := c.Query("url")
	if rawURL == "" {
		results, err := s.hub.SyncSource(c.Request.Context(), name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
		return
	}
	work, err := s.hub.Work(name, rawURL)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := s.hub.Sync(c.Request.Context(), name, work)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleDomain(c *gin.Context) {
	domain, ok := requireQuery(c, "domain")
	if !ok {
		return
	}
	if err := s.hub.SetDomain(c.Param("name"), domain); err != nil {
		writeError(c, err)
		return
	}
	p, _ := s.hub.Parser(c.Param("name"))
	c.JSON(http.StatusOK, gin.H{"domain": p.Domain()})
}

func (s *Server) handleShutdown(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "サーバーをシャットダウンします"})
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.shutdown)
	}
}

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequestError{fmt.Sprintf("%s は0以上の整数である必要があります: %q", key, v)}
	}
	return n, nil
}

func requireQuery(c *gin.Context, key string) (string, bool) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		writeError(c, badRequestError{fmt.Sprintf("%s パラメータが必要です", key)})
		return "", false
	}
	return v, true
}

// statusFor は、エラーの種類をHTTPステータスに対応付けます。
func statusFor(err error) int {
	var bad badRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownSource):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrNoCatalog):
		return http.StatusConflict
	case parser.IsAuthRequired(err):
		return http.StatusUnauthorized
	case parser.IsParseError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// ListenAndServe は addr でサーバーを起動し、ctx が終了するか /api/shutdown が
// 呼ばれるまでブロックします。
func (s *Server) ListenAndServe(ctx context.Context, addr string, openInBrowser bool) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("Web UIサーバーの起動に失敗しました: %w", err)
	}
	server := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  10 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("INFO: Web UIサーバーを http://%s で起動します。", listener.Addr())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	if openInBrowser {
		if err := openBrowser("http://" + listener.Addr().String()); err != nil {
			s.logger.Printf("WARNING: ブラウザの起動に失敗しました: %v。手動でURLを開いてください: http://%s", err, listener.Addr())
		}
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("Web UIサーバーが異常終了しました: %w", err)
		}
		return nil
	case <-ctx.Done():
	case <-s.shutdown:
		// レスポンスを返すための猶予
		time.Sleep(500 * time.Millisecond)
	}

	s.logger.Println("INFO: Web UIサーバーのシャットダウンを開始します...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("Web UIサーバーのシャットダウンに失敗しました: %w", err)
	}
	s.logger.Println("INFO: Web UIサーバーがシャットダウンしました。")
	return nil
}

// openBrowser はOSのデフォルトブラウザでURLを開きます。
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default: // Linux, BSDなど
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ブラウザの起動コマンドの実行に失敗しました: %w", err)
	}
	return nil
}
