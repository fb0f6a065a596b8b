/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"github.com/ssargent/distree/cmd/distree/cmd"
)

func main() {
	cmd.Execute()
}
