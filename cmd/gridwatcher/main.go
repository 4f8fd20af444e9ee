package main

import "gridwatcher/internal/cli"

func main() {
	cli.Execute()
}
