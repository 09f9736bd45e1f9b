package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/parentline/guardian/pkg/policy"
	"github.com/parentline/guardian/pkg/session"
)

var phaseFileNames = map[session.TherapyPhase]string{
	session.PhaseCrisis:         "crisis.yaml",
	session.PhaseUnderstanding:  "understanding.yaml",
	session.PhaseAction:         "action.yaml",
	session.PhaseSustainability: "sustainability.yaml",
}

// NewPolicyCommand builds the `guardctl policy` command tree.
func NewPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate guardrail rule sets",
	}
	cmd.AddCommand(newPolicyValidateCommand())
	cmd.AddCommand(newPolicyListCommand())
	return cmd
}

func newPolicyValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <policy-dir>",
		Short: "Validate every phase rule file in a policy directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := args[0]
			var failed bool
			for phase, file := range phaseFileNames {
				path := filepath.Join(dir, file)
				rs, err := policy.LoadRuleSet(path, phase)
				if err != nil {
					color.Red("FAIL  %-16s %v", phase, err)
					failed = true
					continue
				}
				color.Green("OK    %-16s %d rules (%s)", phase, len(rs.Rules), file)
			}
			if failed {
				return fmt.Errorf("policy validation failed")
			}
			return nil
		},
	}
}

func newPolicyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <policy-dir>",
		Short: "List all rules across phases in evaluation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Phase", "Priority", "Rule ID", "Action", "Trigger"})
			table.SetAutoWrapText(false)

			for _, phase := range []session.TherapyPhase{
				session.PhaseCrisis,
				session.PhaseUnderstanding,
				session.PhaseAction,
				session.PhaseSustainability,
			} {
				path := filepath.Join(args[0], phaseFileNames[phase])
				rs, err := policy.LoadRuleSet(path, phase)
				if err != nil {
					return err
				}
				for _, r := range rs.Rules {
					table.Append([]string{
						string(phase),
						strconv.Itoa(r.Priority),
						r.ID,
						string(r.Action),
						describeTrigger(r.Trigger),
					})
				}
			}
			table.Render()
			return nil
		},
	}
}

func describeTrigger(t policy.Trigger) string {
	var parts []string
	if t.MinCrisisScore != nil {
		parts = append(parts, fmt.Sprintf("crisis>=%.2f", *t.MinCrisisScore))
	}
	if t.MinDistress != nil {
		parts = append(parts, fmt.Sprintf("distress>=%.2f", *t.MinDistress))
	}
	if t.MaxDistress != nil {
		parts = append(parts, fmt.Sprintf("distress<=%.2f", *t.MaxDistress))
	}
	if len(t.Keywords) > 0 {
		op := t.Operator
		if op == "" {
			op = "OR"
		}
		parts = append(parts, fmt.Sprintf("%s(%d keywords)", op, len(t.Keywords)))
	}
	if len(t.States) > 0 {
		states := make([]string, len(t.States))
		for i, s := range t.States {
			states[i] = string(s)
		}
		parts = append(parts, "states="+strings.Join(states, ","))
	}
	return strings.Join(parts, " & ")
}
