package main

import "github.com/ValentinKolb/dInv/cmd"

func main() {
	cmd.Execute()
}
