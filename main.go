package main

import "github.com/facepass/facepass/cmd"

func main() {
	cmd.Execute()
}
