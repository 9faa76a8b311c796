// Package main provides the edgechat CLI, a thin host around the turn
// orchestrator for driving local models from a terminal.
//
// Usage:
//
//	edgechat run --model llama3 "why is the sky blue?"
//	edgechat run --model llava --image photo.png "describe this"
//	edgechat run --model llama3 --attach notes.md "summarize"
//	edgechat reset --model llama3
//
// The ollama engine reads its server address from OLLAMA_HOST; the echo
// engine needs no backend and exists for smoke testing the pipeline.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
