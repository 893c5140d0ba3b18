// chatkit is a headless terminal client for the chat widget core.
//
// It drives a full widget session (model streaming, action routing, and
// persistence) from a REPL, which makes it useful both as a smoke-test
// harness and as a reference embedding.
//
// Usage:
//
//	chatkit chat --config chatkit.yaml
//	chatkit chat --proxy https://host.example/api/chat
package main

import (
	"os"

	"github.com/cropwise/chatkit/cmd/chatkit/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
