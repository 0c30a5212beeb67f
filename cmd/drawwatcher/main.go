package main

import (
	"drawwatcher/internal/cli"
)

func main() {
	cli.Execute()
}
