package main

import "github.com/ctolnik/activity-tracker/agent/cli"

func main() {
	cli.Execute()
}
