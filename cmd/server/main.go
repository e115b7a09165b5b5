package main

import (
	"log/slog"
	"os"

	"labourpanel/internal/app/server"
)

func main() {
	if err := server.Run(); err != nil {
		slog.Error("labour panel stopped", "err", err)
		os.Exit(1)
	}
}
