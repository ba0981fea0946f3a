package main

import "github.com/LeJamon/goXRPLsync/internal/cli"

func main() {
	cli.Execute()
}
