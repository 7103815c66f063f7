package main

import (
	"log"

	"github.com/mcpmon/mcpmon/internal/app"
)

func main() {
	a := app.New()
	if err := a.Run(); err != nil {
		log.Fatalf("mcpmon exited with error: %v", err)
	}
}
