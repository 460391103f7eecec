package main

import (
	"fmt"
	"os"

	"github.com/bobarin/wellvoice/internal/logger"
)

func main() {
	err := NewRootCmd().Execute()
	logger.Sync()

	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
