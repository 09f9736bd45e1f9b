package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parentline/guardian/cmd/guardctl/commands"
)

func main() {
	root := &cobra.Command{
		Use:   "guardctl",
		Short: "Operator tooling for the Guardian safety pipeline",
		Long: `guardctl validates policy rule sets and replays messages through an
offline copy of the safety pipeline, so guardrail changes can be reviewed
before they reach production.`,
		SilenceUsage: true,
	}

	root.AddCommand(commands.NewPolicyCommand())
	root.AddCommand(commands.NewReplayCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
