// The entrypoint for the duskwire CLI.
package main

import (
	"log"

	"duskwire/cmd/duskwire/commands"
)

// Initialises and executes the command hierarchy.
func main() {
	if err := commands.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
