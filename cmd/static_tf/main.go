package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/usbl_position/internal/app"
	"github.com/relabs-tech/usbl_position/internal/config"
)

func main() {
	configPath := flag.String("config", "usbl_config.txt", "path to the KEY=VALUE config file")
	flag.Parse()

	log.Println("publishing static buoy -> usbl transform")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunStaticTF(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
