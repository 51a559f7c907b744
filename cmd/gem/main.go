package main

import "github.com/dyike/GemScreener/internal/cli"

func main() {
	cli.Run()
}
