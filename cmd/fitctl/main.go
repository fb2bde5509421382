package main

import "github.com/goliatone/go-fitauth/cmd/fitctl/cmd"

func main() {
	cmd.Execute()
}
