package main

import "liveroom/cmd"

func main() {
	cmd.Execute()
}
