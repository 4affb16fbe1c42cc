// Minimal entry point that delegates CLI handling to the Cobra root
// command in cmd/root.go.
package main

import (
	"github.com/rezahh107/Matrix2/cmd"
)

func main() {
	cmd.Execute()
}
