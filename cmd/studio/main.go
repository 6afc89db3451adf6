package main

import "ugc-studio/internal/cli"

func main() {
	cli.Execute()
}
