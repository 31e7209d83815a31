package command

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/gogpu/rendergraph/cmd/rgplan/internal/loader"
	"github.com/gogpu/rendergraph/cmd/rgplan/internal/view"
	"github.com/gogpu/rendergraph/graph"
)

func newPlanCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan FILE...",
		Short: "Compile graph descriptions and print their passes",
		Long: "Compile each graph description without a device and print the passes,\n" +
			"barriers and physical resources the planner produced. Directories are\n" +
			"searched for .yaml and .yml files.",
		Example: "  rgplan plan deferred.yaml\n  rgplan plan -o json graphs/",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := loader.LoadAll(args)
			if err != nil {
				return err
			}
			reports := make([]view.PlanReport, 0, len(results))
			failed := 0
			for _, res := range results {
				report := planFile(res)
				if report.Error != "" {
					failed++
				}
				reports = append(reports, report)
			}
			if err := opts.printer(cmd).Plans(reports); err != nil {
				return err
			}
			if failed > 0 {
				return errors.Newf("%d of %d graphs failed to plan", failed, len(reports))
			}
			return nil
		},
	}
}

func planFile(res loader.Result) view.PlanReport {
	if res.Err != nil {
		return view.PlanReport{File: res.Path, Error: res.Err.Error()}
	}
	b, err := loader.Build(res.Graph, loader.BuildOptions{})
	if err != nil {
		return view.PlanReport{File: res.Path, Graph: res.Graph.Name, Error: err.Error()}
	}
	plan, err := graph.NewPlan(b)
	if err != nil {
		return view.PlanReport{File: res.Path, Graph: res.Graph.Name, Error: err.Error()}
	}
	return view.NewPlanReport(res.Path, res.Graph.Name, plan)
}
