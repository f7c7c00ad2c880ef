package main

import "listsync/internal/cli"

func main() {
	cli.Execute()
}
