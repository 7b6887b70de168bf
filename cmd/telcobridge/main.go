package main

import "github.com/telcobridge/telcobridge/internal/cli"

func main() {
	cli.Execute()
}
