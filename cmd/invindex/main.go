package main

import "github.com/Adithya-Monish-Kumar-K/inverted-index/internal/cli"

func main() {
	cli.Execute()
}
