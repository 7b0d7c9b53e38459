// Command photolib は写真ライブラリの一覧・削除APIと孤立blob掃除ワーカーを起動する。
//
//	photolib [serve|worker|migrate|sweep|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/photolib/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
