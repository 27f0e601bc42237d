package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/smallbiznis/orgaccess/internal/orgctl"
)

func main() {
	cfg, err := orgctl.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := orgctl.Run(ctx, cfg, os.Stdout, nil); err != nil {
		exitf("%s: %v", cfg.Command, err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
