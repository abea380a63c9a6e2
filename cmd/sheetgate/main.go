// Command sheetgate はスプレッドシート上の資格情報で保護されたログイン画面とダッシュボードを提供する。
//
// 使い方:
//
//	sheetgate [serve|check|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/sheetgate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
