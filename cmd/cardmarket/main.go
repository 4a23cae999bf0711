package main

import (
	"os"
)

// @title Card Market API
// @version 1.0.0
// @description Trading card marketplace: listings, trade offers, handovers and moderation.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
