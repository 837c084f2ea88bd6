package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/deploymenttheory/go-api-auth-client/apierrors"
)

var cli CLI

func main() {
	kctx := kong.Parse(
		&cli,
		kong.UsageOnError(),
		kong.Name("apiclient"),
		kong.Description("Calls the demo api, refreshing stored credentials when they expire"),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// See respective commands Run() methods
	err := kctx.Run(&app{ctx: ctx, out: os.Stdout, cli: &cli})
	if apierrors.RequiresReauthentication(err) {
		fmt.Fprintln(os.Stderr, "stored credentials are missing or no longer accepted, run store-tokens with a fresh pair")
	}
	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	kctx.FatalIfErrorf(err)
}
