// Command adboard は広告掲示板のAPIサーバー、画像クリーンアップワーカー、
// マイグレーションなどの運用サブコマンドを提供する。
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/adboard/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
