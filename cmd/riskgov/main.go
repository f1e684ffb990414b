package main

import "github.com/rustyeddy/riskgov/internal/cli"

func main() {
	cli.Execute()
}
