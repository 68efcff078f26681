// Package main is the entry point for the idbridge server.
package main

import (
	"os"

	"github.com/idbridge/idbridge/cmd/idbridge/app"
	"github.com/idbridge/idbridge/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
