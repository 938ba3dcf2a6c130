// Package main provides the MCP server entry point for buildwatch.
// This server implements the Model Context Protocol, enabling assistants
// to trigger and watch CI builds through the trigger_build, build_status,
// and watch_build tools.
package main

import (
	"log"

	_ "buildwatch-agent/src/codemagic"
	"buildwatch-agent/src/config"
	_ "buildwatch-agent/src/githubactions"
	"buildwatch-agent/src/mcp"
)

func main() {
	cfg := config.MustLoadFromEnv()

	// Run server over stdin/stdout (stdio transport)
	if err := mcp.NewServer(cfg).Run(); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
