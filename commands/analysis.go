package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-trace-project/internal/application/workspace"
	"github.com/penwyp/go-trace-project/internal/core/model"
)

func (a *app) newAnalysisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analysis",
		Short: "Inspect and schedule analyses",
	}
	cmd.AddCommand(
		a.newAnalysisScheduleCmd(),
		a.newAnalysisPropertiesCmd(),
		a.newAnalysisReloadCmd(),
	)
	return cmd
}

func findAnalysis(ws *workspace.Workspace, path string) (model.AnalysisElement, error) {
	an, ok := ws.Project().Find(path).(model.AnalysisElement)
	if !ok {
		return nil, fmt.Errorf("no analysis at %s", path)
	}
	return an, nil
}

func (a *app) newAnalysisScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <analysis-path>",
		Short: "Open the owning trace and schedule an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				an, err := findAnalysis(ws, args[0])
				if err != nil {
					return err
				}
				if _, err := ws.OpenTrace(an.ParentEntity().Path()); err != nil {
					return err
				}
				status := an.ScheduleAnalysis()
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", status.Severity, status.Message)
				return nil
			})
		},
	}
}

func (a *app) newAnalysisPropertiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "properties <analysis-path>",
		Short: "Print the properties of an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				an, err := findAnalysis(ws, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", an.HelpMessage())
				printProperties(cmd, "Properties", an.AnalysisProperties())
				printProperties(cmd, "Helper properties", an.AnalysisHelperProperties())
				return nil
			})
		},
	}
}

func printProperties(cmd *cobra.Command, title string, props map[string]string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s:\n", title)
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %s = %s\n", k, props[k])
	}
}

func (a *app) newAnalysisReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload configurable analyses and print the tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				if err := ws.ReloadAnalyses(cmd.Context()); err != nil {
					return err
				}
				return a.printTree(cmd, ws)
			})
		},
	}
}
