package main

import (
	"log"
	"os"

	"GoMangaParsers/internal/catalog"
	"GoMangaParsers/internal/config"
	"GoMangaParsers/internal/core"
	"GoMangaParsers/internal/network"

	"github.com/spf13/cobra"
)

// app は、サブコマンドが共有する実行時の依存関係です。
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	logFile *os.File
	store   *catalog.Store
	hub     *core.Hub
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Printf("WARNING: カタログを閉じる際にエラーが発生しました: %v", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// newApp は、設定ファイルを読み込み、HTTPクライアント・カタログ・Hub を組み立てます。
func newApp(configPath string, verbose, withCatalog bool) (*app, error) {
	cfg, err := config.LoadAndResolve(configPath)
	if err != nil {
		return nil, err
	}
	logger, logFile := setupLogger(cfg, verbose)
	a := &app{cfg: cfg, logger: logger, logFile: logFile}

	client, err := network.NewClient(cfg.Network, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if withCatalog && cfg.CatalogPath != "" {
		a.store, err = catalog.Open(cfg.CatalogPath)
		if err != nil {
			a.close()
			return nil, err
		}
	}
	a.hub, err = core.NewHub(cfg, client, a.store, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// session は、実行中のコマンドが使う app を保持します。
// RunE が失敗すると PersistentPostRun は呼ばれないため、後始末は呼び出し側が close で行います。
type session struct {
	app *app
}

func (s *session) close() {
	if s.app != nil {
		s.app.close()
		s.app = nil
	}
}

func newRootCmd() (*cobra.Command, *session) {
	var (
		configPath string
		verbose    bool
		noCatalog  bool
		jsonOutput bool
	)
	current := &session{}

	root := &cobra.Command{
		Use:          "mangaparse",
		Short:        "マンガサイトから作品・チャプター・ページを取得します",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, verbose, !noCatalog)
			if err != nil {
				return err
			}
			current.app = a
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "設定ファイルのパス")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "ログを標準エラーに出力します")
	root.PersistentFlags().BoolVar(&noCatalog, "no-catalog", false, "カタログへの保存を行いません")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "結果をJSONで出力します")

	get := func() *app { return current.app }
	out := func(cmd *cobra.Command) *printer {
		return &printer{w: cmd.OutOrStdout(), json: jsonOutput}
	}

	root.AddCommand(
		newSourcesCmd(get, out),
		newListCmd(get, out),
		newTagsCmd(get, out),
		newDetailsCmd(get, out),
		newPagesCmd(get, out),
		newWhoAmICmd(get, out),
		newSyncCmd(get, out),
		newServeCmd(get),
	)
	return root, current
}
