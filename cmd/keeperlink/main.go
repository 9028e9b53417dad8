package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/keeperlink/internal/app"
	"github.com/dmitrijs2005/keeperlink/internal/config"
	"github.com/dmitrijs2005/keeperlink/internal/flagx"
)

func main() {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.LoadConfig()
	a, err := app.NewApp(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	a.InitSignalHandler(ctx)

	err = a.Run(ctx, flagx.Positional(os.Args[1:], config.ValueFlags))
	if cerr := a.Close(); cerr != nil {
		log.Printf("close: %v", cerr)
	}
	if err != nil {
		if !errors.Is(err, app.ErrUsage) {
			log.Printf("%v", err)
		}
		os.Exit(1)
	}
}
