package main

import (
	"barborsa/internal/cli"
)

func main() {
	cli.Execute()
}
