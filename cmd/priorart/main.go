package main

import "priorart/internal/cli"

func main() {
	cli.Execute()
}
