// Command javapool is the admin CLI for inspecting and managing the
// local hottub JVM pool.
package main

import (
	"fmt"
	"os"

	"github.com/dsrg-uoft/hottub/internal/poolcmd"
)

func main() {
	if err := poolcmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
