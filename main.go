package main

import "imagebot/cmd"

func main() {
	cmd.Execute()
}
