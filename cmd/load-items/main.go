package main

import (
	"flag"
	"log"

	"gamification/internal/config"
	"gamification/internal/db"
)

func main() {
	gameID := flag.Uint("game", 0, "game id to attach items to")
	path := flag.String("file", "", "CSV file with name,file_name[,sort_order] rows")
	flag.Parse()

	if *gameID == 0 || *path == "" {
		log.Fatal("-game and -file are required")
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}

	conn, err := db.Open(config.Load())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	inserted, err := db.LoadGameItems(conn, *gameID, *path)
	if err != nil {
		log.Fatalf("load items: %v", err)
	}
	log.Printf("loaded %d items into game %d", inserted, *gameID)
}
