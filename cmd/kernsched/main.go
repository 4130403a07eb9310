// Command kernsched runs scheduler workload scenarios, see package
// scenario for the file format.
//
//	kernsched run [flags] <scenario.yaml>
//	kernsched validate <scenario.yaml>
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
