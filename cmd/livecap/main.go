// Command livecap records live broadcasts and monitors running recorders.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/Iron-Ham/livecap/internal/cmd"
)

func main() {
	// Optional .env; real environment variables take precedence.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
