// Command clip runs the CLIP MCP response-shaping proxy.
package main

import "github.com/clip-mcp/clip/cmd/clip/cmd"

func main() {
	cmd.Execute()
}
