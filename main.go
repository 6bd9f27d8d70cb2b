package main

import "github.com/reflekt-app/reflekt/cmd"

func main() {
	cmd.Execute()
}
