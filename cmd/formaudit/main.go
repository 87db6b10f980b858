package main

import (
	"fmt"
	"os"

	"github.com/adityalohuni/formaudit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "formaudit:", err)
		os.Exit(1)
	}
}
