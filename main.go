// Command audioscore scores audio and speech quality through remote model
// services.
//
// Usage:
//
//	audioscore aesthetics <input> [--ckpt id] [--batch-size n]
//	audioscore speech <test> [reference] [--metrics PESQ,STOI] [--window 10s]
//	audioscore metrics
//	audioscore history
//
// Inputs may be a file, a directory, a text or YAML manifest, or an
// s3://bucket/prefix.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
