// Command agentcorectl issues agent-platform operations by name through the unified client.
package main

import (
	"fmt"
	"io"
	"os"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "call":
		err = runCall(args[1:], stdout, stderr)
	case "which":
		err = runWhich(args[1:], stdout, stderr)
	case "ops":
		err = runOps(args[1:], stdout, stderr)
	case "journal":
		err = runJournal(args[1:], stdout, stderr)
	case "stats":
		err = runStats(args[1:], stdout, stderr)
	case "secrets":
		err = runSecrets(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Error: unknown command '%s'\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	if err != nil {
		if usageErr, ok := err.(usageError); ok {
			fmt.Fprintf(stderr, "Error: %v\n\n", usageErr)
			printUsage(stderr)
			return exitUsage
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

// usageError marks errors caused by bad command-line input.
type usageError string

func (e usageError) Error() string { return string(e) }

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "agentcorectl - unified control/data plane client\n\n")
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  agentcorectl call <operation> [--arg key=value]... [--json '{...}'] [--query path]\n")
	fmt.Fprintf(w, "  agentcorectl which <operation>\n")
	fmt.Fprintf(w, "  agentcorectl ops [--plane control|data|all]\n")
	fmt.Fprintf(w, "  agentcorectl journal [--limit N] [--json]\n")
	fmt.Fprintf(w, "  agentcorectl stats [--operation name] [--prometheus url]\n")
	fmt.Fprintf(w, "  agentcorectl secrets set|list\n\n")
	fmt.Fprintf(w, "Common flags:\n")
	fmt.Fprintf(w, "  --config string\n        Config file (.json or .toml)\n")
	fmt.Fprintf(w, "  --region string\n        Region override (default: config, AWS_REGION, profile, us-west-2)\n\n")
	fmt.Fprintf(w, "Examples:\n")
	fmt.Fprintf(w, "  agentcorectl call list_memories\n")
	fmt.Fprintf(w, "  agentcorectl call create_event --arg memoryId=m-1 --arg payload.0.blob=hi --query event.eventId\n")
	fmt.Fprintf(w, "  agentcorectl which invoke_agent_runtime\n")
}
