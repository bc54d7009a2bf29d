package main

import (
	"github.com/pyneda/kensa/cmd"
)

func main() {
	cmd.Execute()
}
