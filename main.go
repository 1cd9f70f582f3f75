package main

import (
	"MuseFM/cmd"
)

func main() {
	cmd.Execute()
}
