package main

import "github.com/jjenkins/visawatch/cmd"

func main() {
	cmd.Execute()
}
