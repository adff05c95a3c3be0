package main

import "github.com/hadir-dev/hadir/cmd"

func main() {
	cmd.Execute()
}
