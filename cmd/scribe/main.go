package main

import "github.com/voxlane/scribe/internal/cli"

func main() {
	cli.Execute()
}
