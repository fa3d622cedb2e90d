package main

import "github.com/emiliopalmerini/splango/internal/cli"

func main() {
	cli.Execute()
}
