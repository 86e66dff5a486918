package main

import (
	"fmt"
	"strconv"
	"strings"

	"GoMangaParsers/internal/core"
	"GoMangaParsers/internal/model"
	"GoMangaParsers/internal/parser"
	"GoMangaParsers/internal/webui"

	"github.com/spf13/cobra"
)

type (
	appFunc     func() *app
	printerFunc func(*cobra.Command) *printer
)

func newSourcesCmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "設定されたソースの一覧を表示します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, p := get(), out(cmd)
			sources := a.hub.Sources()
			return p.result(sources, func() {
				rows := make([][]string, 0, len(sources))
				for _, s := range sources {
					prs, err := a.hub.Parser(s.Name)
					if err != nil {
						continue
					}
					_, login := prs.(parser.Authenticator)
					orders := make([]string, 0)
					for _, o := range prs.SortOrders() {
						orders = append(orders, string(o))
					}
					rows = append(rows, []string{s.Name, s.Engine, prs.Domain(), strings.Join(orders, ","), strconv.FormatBool(login)})
				}
				p.table([]string{"名前", "エンジン", "ドメイン", "並び順", "ログイン"}, rows)
			})
		},
	}
}

func newListCmd(get appFunc, out printerFunc) *cobra.Command {
	var (
		query  string
		tags   []string
		sort   string
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list <source>",
		Short: "作品の一覧を1ページ分取得します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, p := get(), out(cmd)
			name := args[0]
			order, err := parser.ParseSortOrder(sort)
			if err != nil {
				return err
			}
			resolved, err := a.hub.ResolveTags(cmd.Context(), name, tags)
			if err != nil {
				return err
			}
			if len(resolved) < len(tags) {
				a.logger.Printf("WARNING: [%s] 一部のタグが見つかりませんでした: %v", name, tags)
			}
			works, err := a.hub.List(cmd.Context(), name, parser.ListRequest{
				Offset: offset,
				Query:  query,
				Tags:   resolved,
				Sort:   order,
			})
			if err != nil {
				return err
			}
			return p.result(works, func() {
				p.table([]string{"#", "タイトル", "状態", "評価", "URL"}, workRows(works))
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "検索語")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "タグのキーまたはタイトル (複数指定可)")
	cmd.Flags().StringVarP(&sort, "sort", "s", "", "並び順 (newest, popularity, alphabetical, updated, rating)")
	cmd.Flags().IntVarP(&offset, "offset", "o", 0, "ページ番号またはオフセット (ソースによる)")
	return cmd
}

func newTagsCmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "tags <source>",
		Short: "ソースのタグ一覧を表示します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, p := get(), out(cmd)
			tags, err := a.hub.Tags(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.result(tags, func() {
				rows := make([][]string, 0, len(tags))
				for _, t := range tags {
					rows = append(rows, []string{t.Key, t.Title})
				}
				p.table([]string{"キー", "タイトル"}, rows)
			})
		},
	}
}

func newDetailsCmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "details <source> <url>",
		Short: "作品の詳細とチャプター一覧を取得します",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, p := get(), out(cmd)
			work, err := a.hub.Work(args[0], args[1])
			if err != nil {
				return err
			}
			detailed, err := a.hub.Details(cmd.Context(), args[0], work)
			if err != nil {
				return err
			}
			return p.result(detailed, func() { printWork(p, detailed) })
		},
	}
}

func printWork(p *printer, w model.Work) {
	p.title(w.Title)
	p.field("別名", w.AltTitle)
	p.field("作者", w.Author)
	p.field("状態", w.State.String())
	p.field("評価", formatRating(w))
	if len(w.Tags) > 0 {
		titles := make([]string, 0, len(w.Tags))
		for _, t := range w.Tags {
			titles = append(titles, t.Title)
		}
		p.field("タグ", strings.Join(titles, ", "))
	}
	p.field("URL", w.PublicURL)
	if w.Description != "" {
		fmt.Fprintf(p.w, "\n%s\n", w.Description)
	}
	fmt.Fprintln(p.w)
	p.table([]string{"#", "名前", "日付", "翻訳", "URL"}, chapterRows(w.Chapters))
}

func newPagesCmd(get appFunc, out printerFunc) *cobra.Command {
	var (
		resolve bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "pages <source> <chapter-url>...",
		Short: "チャプターのページ一覧を取得します",
		Long:  "チャプターのページ一覧を取得します。複数のURLを指定した場合は並行して取得します。",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, p := get(), out(cmd)
			name := args[0]
			chapters := make([]model.Chapter, 0, len(args)-1)
			for i, u := range args[1:] {
				ch, err := a.hub.Chapter(name, u)
				if err != nil {
					return err
				}
				ch.Number = i + 1
				chapters = append(chapters, ch)
			}

			if len(chapters) == 1 {
				pages, err := a.hub.Pages(cmd.Context(), name, chapters[0], resolve)
				if err != nil {
					return err
				}
				return p.result(pages, func() { p.table([]string{"#", "URL"}, pageRows(pages)) })
			}

			all, err := a.hub.PrefetchPages(cmd.Context(), name, chapters, limit)
			if err != nil {
				return err
			}
			return p.result(all, func() {
				for i, pages := range all {
					p.title(chapters[i].URL)
					p.table([]string{"#", "URL"}, pageRows(pages))
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&resolve, "resolve", "r", false, "ページごとの画像URLを解決します (1チャプターのみ)")
	cmd.Flags().IntVar(&limit, "limit", 0, "同時に取得するチャプター数 (0 で設定値)")
	return cmd
}

func pageRows(pages []model.Page) [][]string {
	rows := make([][]string, 0, len(pages))
	for i, pg := range pages {
		rows = append(rows, []string{strconv.Itoa(i + 1), pg.URL})
	}
	return rows
}

func newWhoAmICmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami <source>",
		Short: "ソースのログイン状態を表示します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, p := get(), out(cmd)
			acc, err := a.hub.WhoAmI(cmd.Context(), args[0])
			if err != nil && !parser.IsAuthRequired(err) {
				return err
			}
			return p.result(acc, func() {
				if !acc.Authorized {
					fmt.Fprintf(p.w, "%s: ログインしていません。設定ファイルの cookies にセッションCookieを指定してください。\n", acc.Source)
					return
				}
				fmt.Fprintf(p.w, "%s: %s としてログインしています。\n", acc.Source, acc.Username)
			})
		},
	}
}

func newSyncCmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <source> [url]",
		Short: "作品を取得し直し、前回から追加されたチャプターを表示します",
		Long:  "url を指定した場合はその作品を、省略した場合はカタログに保存されたソースの全作品を同期します。",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, p := get(), out(cmd)
			name := args[0]
			var results []core.SyncResult
			if len(args) == 2 {
				work, err := a.hub.Work(name, args[1])
				if err != nil {
					return err
				}
				res, err := a.hub.Sync(cmd.Context(), name, work)
				if err != nil {
					return err
				}
				results = append(results, res)
			} else {
				var err error
				if results, err = a.hub.SyncSource(cmd.Context(), name); err != nil {
					return err
				}
			}
			return p.result(results, func() {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					status := strconv.Itoa(len(r.NewChapters))
					if r.FirstSeen {
						status = "新規"
					}
					rows = append(rows, []string{truncate(r.Work.Title, 50), strconv.Itoa(len(r.Work.Chapters)), status})
				}
				p.table([]string{"タイトル", "チャプター", "新着"}, rows)
			})
		},
	}
}

func newServeCmd(get appFunc) *cobra.Command {
	var (
		addr string
		open bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Web UI とJSON APIを起動します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if addr == "" {
				addr = a.cfg.WebUIAddr
			}
			return webui.New(a.hub, a.logger).ListenAndServe(cmd.Context(), addr, open)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "待ち受けるアドレス (省略時は設定値)")
	cmd.Flags().BoolVar(&open, "open", false, "ブラウザでWeb UIを開きます")
	return cmd
}
