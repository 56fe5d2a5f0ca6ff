package main

import (
	"skindrop/internal/cli"
)

func main() {
	cli.Execute()
}
