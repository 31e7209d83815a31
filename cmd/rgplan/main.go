// Command rgplan plans render graphs described in YAML and simulates them
// on a no-op device.
package main

import "github.com/gogpu/rendergraph/cmd/rgplan/internal/command"

func main() {
	command.Execute()
}
