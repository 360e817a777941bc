package main

import "SpotTradeBot/internal/cli"

func main() {
	cli.Execute()
}
