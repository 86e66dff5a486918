// mangaparse は、設定ファイルに定義されたマンガサイトから作品・チャプター・ページを
// 取得するコマンドラインツールです。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, s := newRootCmd()
	err := root.ExecuteContext(ctx)
	s.close()
	if err != nil {
		stop()
		os.Exit(1)
	}
}
