package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/parentline/guardian/pkg/config"
	"github.com/parentline/guardian/pkg/crisis"
	"github.com/parentline/guardian/pkg/dispatch"
	"github.com/parentline/guardian/pkg/emotion"
	"github.com/parentline/guardian/pkg/pii"
	"github.com/parentline/guardian/pkg/pipeline"
	"github.com/parentline/guardian/pkg/policy"
	"github.com/parentline/guardian/pkg/session"
)

// NewReplayCommand builds `guardctl replay`: one message through an offline
// pipeline with no model calls (keyword-floor crisis scoring, neutral
// emotion prior, canned responses), so guardrail routing can be inspected
// without credentials or network.
func NewReplayCommand() *cobra.Command {
	var (
		configPath string
		text       string
		locale     string
		state      string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run one message through an offline copy of the pipeline",
		RunE: func(_ *cobra.Command, _ []string) error {
			if text == "" {
				return fmt.Errorf("--text is required")
			}

			cfg, err := config.Parse(configPath)
			if err != nil {
				return err
			}

			policies, err := policy.NewManager(cfg.Policy.Dir)
			if err != nil {
				return err
			}

			store := session.NewMemoryStore()
			scrubber := pii.NewScrubber(
				pii.WithMaxInputLength(cfg.PII.MaxInputLength),
				pii.WithConfidenceThreshold(cfg.PII.ConfidenceThreshold),
			)

			if state != "" {
				seed := session.NewSession("replay", "replay-user", time.Now())
				seed.CurrentState = session.State(state)
				seed.TherapyPhase = session.PhaseForState(seed.CurrentState)
				if err := store.SaveSession(context.Background(), seed); err != nil {
					return err
				}
			}

			orch := pipeline.NewOrchestrator(pipeline.Deps{
				Store:      store,
				Scrubber:   scrubber,
				Detector:   crisis.NewDetector(nil, crisis.NewKeywordScorer(nil, 0), cfg.Crisis.Threshold, cfg.CrisisTimeout()),
				Classifier: emotion.NewClassifier(nil, cfg.EmotionTimeout()),
				Policies:   policies,
				Dispatcher: dispatch.NewDispatcher(nil, scrubber, cfg.DispatchTimeout()),
			})

			out, err := orch.ProcessMessage(context.Background(), pipeline.TurnInput{
				SessionID: "replay",
				UserID:    "replay-user",
				RawText:   text,
				Locale:    locale,
			})
			if err != nil {
				return err
			}

			msgs := store.Messages("replay")
			if len(msgs) > 0 {
				m := msgs[len(msgs)-1]
				fmt.Printf("scrubbed text:   %s\n", m.ScrubbedText)
				fmt.Printf("content hash:    %s\n", m.ContentHash[:16])
				fmt.Printf("crisis score:    %.2f\n", m.CrisisScore)
				fmt.Printf("emotion:         %s\n", m.DetectedEmotion)
				if len(m.AppliedPolicyIDs) > 0 {
					fmt.Printf("matched rules:   %s\n", strings.Join(m.AppliedPolicyIDs, ", "))
				}
			}

			if out.Reply.Crisis {
				color.Red("resulting state: %s", out.ResultingState)
			} else {
				color.Green("resulting state: %s", out.ResultingState)
			}
			fmt.Printf("reply:           %s\n", out.Reply.Text)
			if out.Reply.Warning != "" {
				color.Yellow("warning:         %s", out.Reply.Warning)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config/config.yaml", "Path to the configuration file")
	cmd.Flags().StringVar(&text, "text", "", "Message text to replay")
	cmd.Flags().StringVar(&locale, "locale", "en", "Message locale")
	cmd.Flags().StringVar(&state, "state", "", "Seed session state before the turn (default: fresh session)")
	return cmd
}
