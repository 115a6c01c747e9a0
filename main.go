package main

import "github.com/ledgerly/sentinel/cmd"

func main() {
	cmd.Execute()
}
