package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _           _                              _          __  __
 | |__  _   _| |__  _   _ _   _ _ __ ___    | |__  / _|/ _|
 | '_ \| | | | '_ \| | | | | | | '_ ` + "`" + ` _ \   | '_ \| |_| |_
 | | | | |_| | |_) | |_| | |_| | | | | | |  | |_) |  _|  _|
 |_| |_|\__,_|_.__/ \__,_|\__,_|_| |_| |_|  |_.__/|_| |_|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m\n", banner)
	fmt.Fprintf(w, "\x1b[32m  Hubuum console backend - Version %s\x1b[0m\n\n", Version)
}
