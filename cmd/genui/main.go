// Command genui renders UI schema documents locally and inspects
// generation tasks on a running API server.
//
// Usage:
//
//	genui render  FILE
//	genui preview FILE [--watch]
//	genui tasks   --session ID
//	genui history --session ID --interaction ID [--kind image]
//	genui follow  TASK_ID
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
