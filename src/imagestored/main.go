package main

import "github.com/q-controller/imagestore/src/imagestored/cmd"

func main() {
	cmd.Execute()
}
