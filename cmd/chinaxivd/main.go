package main

import "github.com/domus-magna/chinaxiv-english-sub001/internal/cli"

func main() {
	cli.Execute()
}
