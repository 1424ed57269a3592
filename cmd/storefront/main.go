// Command storefront はストアフロントの認証APIサーバーを起動する。
//
// 使い方:
//
//	storefront [serve|migrate|healthcheck|hash-password <password>]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/storefront/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
