package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jzx17/photobatch/internal/cli"
)

func main() {
	start := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewStaticCommand(start).ExecuteContext(ctx)
	stop()
	cobra.CheckErr(err)
}
