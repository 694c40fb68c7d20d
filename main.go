package main

import "go.universe.tf/pupiltrack/cmd"

func main() {
	cmd.Execute()
}
