package main

import "orderdesk/cmd"

func main() {
	cmd.Execute()
}
