package main

import (
	"os"

	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	if err := newRootCmd(log, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
