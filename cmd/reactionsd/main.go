// Command reactionsd runs the reactions server and its maintenance commands.
//
// @title                       Reactions API
// @version                     1.0
// @description                 Per-module emoji reactions with vote tokens and live websocket fanout.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  AdminToken
// @in                          header
// @name                        X-Admin-Token
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tbourn/go-reactions-backend/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "reactionsd:", err)
		stop()
		os.Exit(1)
	}
}
