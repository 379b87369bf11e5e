package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/dlkeeper/internal/client/cli"
	"github.com/dmitrijs2005/dlkeeper/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

}
