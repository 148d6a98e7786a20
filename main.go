package main

import "github.com/ollaforge/forgecli/cli"

func main() {
	cli.Execute()
}
