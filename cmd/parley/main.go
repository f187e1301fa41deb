package main

import (
	"log"

	"github.com/joho/godotenv"

	"parley/cmd/internal/app"
)

func main() {
	// Best effort: a missing .env just means config comes from the
	// process environment.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
