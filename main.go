// Package main is the entry point for the tessel CLI.
package main

import "tessel.dev/pkg/tessel/cmd"

func main() {
	cmd.Execute()
}
