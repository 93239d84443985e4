package main

import "github.com/CanRau/logux-core/cmd/loguxd/commands"

func main() {
	commands.Execute()
}
