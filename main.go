package main

import "fileferry/cmd"

func main() {
	cmd.Execute()
}
