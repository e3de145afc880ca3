package main

import "github.com/BioHazard786/Duet/cmd"

func main() {
	cmd.Execute()
}
