package main

import (
	"jupwatcher/internal/cli"
)

func main() {
	cli.Execute()
}
