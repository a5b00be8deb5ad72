package main

import (
	"fmt"
	"os"
)

func cleanupAndExit() {
	os.Exit(2)
}

func main() {
	fmt.Println("starting")
	os.Exit(1) // want "avoid using os.Exit in main.main"
}
