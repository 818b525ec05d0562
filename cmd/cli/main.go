package main

import (
	"os"

	"github.com/keshon/botcore/internal/logger"
)

func main() {
	app := NewApp()
	if err := app.CreateRootCommand().Execute(); err != nil {
		logger.Logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}
