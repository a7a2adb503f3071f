package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/pentest-crew/api/schemas"
	"github.com/xkilldash9x/pentest-crew/internal/browser"
	"github.com/xkilldash9x/pentest-crew/internal/observability"
	"github.com/xkilldash9x/pentest-crew/internal/orchestrator"
	"github.com/xkilldash9x/pentest-crew/internal/phase"
	"github.com/xkilldash9x/pentest-crew/internal/results"
)

// agentView is an agent spec as shown by the phases command.
type agentView struct {
	Name       string   `yaml:"name"`
	Role       string   `yaml:"role"`
	Activation string   `yaml:"activation,omitempty"`
	Tools      []string `yaml:"tools,omitempty"`
}

type phaseView struct {
	Policy orchestrator.Policy `yaml:"policy"`
	Agents []agentView         `yaml:"agents"`
}

// newPhasesCmd creates the `phases` command, which prints the roster and
// schedule of each phase as YAML without contacting any model.
func newPhasesCmd(app *application) *cobra.Command {
	return &cobra.Command{
		Use:       "phases [phase...]",
		Short:     "Prints the agent roster and step plan of each phase as YAML",
		ValidArgs: phaseNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := schemas.AllPhases
			if len(args) > 0 {
				names = names[:0:0]
				for _, a := range args {
					n, err := schemas.ParsePhaseName(a)
					if err != nil {
						return err
					}
					names = append(names, n)
				}
			}

			ws := app.cfg.Workspace()
			workDir := ws.ResolveWorkDir()
			env := phase.Env{
				Config: app.cfg,
				Layout: results.NewLayout(inWorkDir(workDir, ws.ResultsDir)),
				// Never invoked while planning.
				Capturer: browser.NewFormAnalyzer(app.cfg.Browser(), "", "", observability.GetLogger()),
			}
			target := app.cfg.Phases().Target
			if target == "" && app.cfg.Orchestrator().Interaction == string(schemas.InteractionNever) {
				target = orchestrator.TargetPlaceholder
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			for _, n := range names {
				bp, err := phase.Plan(n, env, target)
				if err != nil {
					return fmt.Errorf("failed to plan %s: %w", n, err)
				}
				if err := enc.Encode(viewOf(bp)); err != nil {
					return fmt.Errorf("failed to encode %s: %w", n, err)
				}
			}
			return nil
		},
	}
}

func viewOf(bp phase.Blueprint) phaseView {
	v := phaseView{Policy: bp.Policy}
	for _, s := range bp.Agents {
		v.Agents = append(v.Agents, agentView{
			Name:       s.Name,
			Role:       string(s.Role),
			Activation: string(s.Activation),
			Tools:      s.Tools.Names(),
		})
	}
	return v
}
