package main

import "visualdupfinder/cmd"

func main() {
	cmd.Execute()
}
