package main

import "github.com/tasklift/autopilot/internal/cli"

func main() {
	cli.Execute()
}
