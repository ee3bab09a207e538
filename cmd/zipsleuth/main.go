package main

import (
	"log"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/zipsleuth/internal/cmd"
)

func main() {
	p, err := cmd.NewParser()
	if err != nil {
		log.Fatalf("create parser error: %v", err)
	}

	if _, err = p.Parse(); err != nil && !flags.WroteHelp(err) {
		os.Exit(1)
	}
}
