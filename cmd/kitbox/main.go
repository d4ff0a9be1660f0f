// Kitbox admin CLI — operator tooling for the admin API
//
// Usage:
//
//	kitbox version
//	kitbox token mint --uid u123 --email ops@example.com --admin --ttl 1h
//	kitbox gate hash
//	kitbox admin promote --uid u123
//	kitbox stats --server https://kitbox.internal --token $TOKEN
package main

import (
	"fmt"
	"os"

	"github.com/kitbox/kitbox/cmd/kitbox/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
