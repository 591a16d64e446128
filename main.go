package main

import (
	cmd "github.com/rheldev6-ship-it/integ/cmd/integ"
)

func main() {
	cmd.Execute()
}
