package main

import "github.com/kurumiimari/sealdex/cmd/sealdex/cmd"

func main() {
	cmd.Execute()
}
