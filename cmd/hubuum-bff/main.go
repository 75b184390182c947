package main

import "github.com/jmcleod/hubuum-bff/cmd/hubuum-bff/cmd"

func main() {
	cmd.Execute()
}
