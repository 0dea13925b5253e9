// Command mailbox runs a mailbox service for one agent, or sends a single
// message into another agent's inbox.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun()
	case "send":
		runSend()
	case "version":
		fmt.Println("mailbox version dev")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("beast-mailbox CLI")
	fmt.Println()
	fmt.Println("Usage: mailbox <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run <agent-id>             - Run a mailbox service for an agent")
	fmt.Println("  send <sender> <recipient>  - Send a message to an agent's inbox")
	fmt.Println("  version                    - Show version")
}
