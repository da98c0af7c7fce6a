package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/Halldon-Inc/moltblox-sub002/internal/app"

	_ "github.com/Halldon-Inc/moltblox-sub002/internal/games/artillery"
	_ "github.com/Halldon-Inc/moltblox-sub002/internal/games/brawl"
	_ "github.com/Halldon-Inc/moltblox-sub002/internal/games/dungeon"
	_ "github.com/Halldon-Inc/moltblox-sub002/internal/games/sumo"
	_ "github.com/Halldon-Inc/moltblox-sub002/internal/games/wrestling"
)

func main() {
	configDir := flag.String("config-dir", ".", "directory containing gamehost.cfg.json")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, *configDir); err != nil {
		log.Fatalf("%v", err)
	}
}
