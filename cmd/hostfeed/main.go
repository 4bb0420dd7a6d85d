package main

import "hostfeed/internal/cli"

func main() {
	cli.Execute()
}
