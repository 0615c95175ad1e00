package main

import "lodestone/cmd"

func main() {
	cmd.Execute()
}
