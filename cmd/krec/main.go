package main

import "github.com/unijord/krec/cmd/krec/cmd"

func main() {
	cmd.Execute()
}
