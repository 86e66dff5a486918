package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"GoMangaParsers/internal/config"
)

// setupLogger はログ出力先を設定し、閉じる必要のあるログファイルを返します。
// config.EnableLogFile が true の場合、ファイルにも出力します。
// 標準出力はコマンドの結果に使うため、ログは標準エラーに出力します。
func setupLogger(cfg *config.Config, verbose bool) (*log.Logger, *os.File) {
	var console io.Writer = io.Discard
	if verbose {
		console = os.Stderr
	}

	if !cfg.EnableLogFile {
		return log.New(console, "", log.LstdFlags), nil
	}

	path := cfg.LogFilePath
	if path == "" {
		// デフォルトは日付形式
		path = fmt.Sprintf("mangaparse_%s.log", time.Now().Format("2006-01-02"))
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger := log.New(os.Stderr, "", log.LstdFlags)
		logger.Printf("WARNING: ログファイルを開けませんでした: %v", err)
		return logger, nil
	}
	logger := log.New(io.MultiWriter(console, f), "", log.LstdFlags)
	logger.Printf("INFO: ログ出力をファイル '%s' に開始しました", path)
	return logger, f
}
