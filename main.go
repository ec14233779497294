package main

import (
	"os"

	"github.com/resqmeals/gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
