package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-trace-project/internal/application/workspace"
	"github.com/penwyp/go-trace-project/internal/core/model"
	"github.com/penwyp/go-trace-project/internal/core/storage"
)

func (a *app) newExperimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experiment",
		Aliases: []string{"exp"},
		Short:   "Manage the experiments of the project",
	}
	cmd.AddCommand(
		a.newExperimentCreateCmd(),
		a.newExperimentAddCmd(),
		a.newExperimentRemoveCmd(),
		a.newExperimentCopyCmd(),
		a.newExperimentRenameCmd(),
		a.newExperimentDeleteCmd(),
	)
	return cmd
}

func findExperiment(ws *workspace.Workspace, name string) (*model.Experiment, error) {
	ef := ws.Project().ExperimentsFolder()
	if ef == nil {
		return nil, fmt.Errorf("project has no experiments folder")
	}
	exp := ef.Experiment(name)
	if exp == nil {
		return nil, fmt.Errorf("no experiment %s", name)
	}
	return exp, nil
}

func addTraces(ws *workspace.Workspace, exp *model.Experiment, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	tf := ws.Project().TracesFolder()
	if tf == nil {
		return fmt.Errorf("project has no traces folder")
	}
	traces := tf.TraceElements(paths)
	if len(traces) != len(paths) {
		found := make(map[string]bool, len(traces))
		for _, t := range traces {
			found[t.Path()] = true
		}
		for _, p := range paths {
			if !found[p] {
				return fmt.Errorf("no trace at %s", p)
			}
		}
	}
	for _, t := range traces {
		if err := exp.AddTrace(t, false); err != nil {
			return err
		}
	}
	exp.Refresh()
	return nil
}

func (a *app) newExperimentCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [trace-path...]",
		Short: "Create an experiment from traces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				p := ws.Project()
				if err := p.CreateFolderStructure(); err != nil {
					return err
				}
				p.Refresh()
				path := storage.Join(model.ExperimentsFolderName, args[0])
				if err := ensureDir(p.AbsPath(path)); err != nil {
					return err
				}
				exp, err := p.ExperimentsFolder().AddExperiment(path)
				if err != nil {
					return err
				}
				if err := addTraces(ws, exp, args[1:]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created experiment %s\n", exp.Label())
				return nil
			})
		},
	}
}

func (a *app) newExperimentAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <trace-path...>",
		Short: "Add traces to an experiment",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				exp, err := findExperiment(ws, args[0])
				if err != nil {
					return err
				}
				return addTraces(ws, exp, args[1:])
			})
		},
	}
}

func (a *app) newExperimentRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name> <element-path...>",
		Short: "Remove traces from an experiment",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				exp, err := findExperiment(ws, args[0])
				if err != nil {
					return err
				}
				for _, ep := range args[1:] {
					var found *model.Trace
					for _, t := range exp.Traces() {
						if t.ElementPath() == ep {
							found = t
						}
					}
					if found == nil {
						return fmt.Errorf("experiment %s has no trace %s", args[0], ep)
					}
					if err := exp.RemoveTrace(found); err != nil {
						return err
					}
				}
				exp.Refresh()
				return nil
			})
		},
	}
}

func (a *app) newExperimentCopyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy <name> <new-name>",
		Short: "Copy an experiment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				exp, err := findExperiment(ws, args[0])
				if err != nil {
					return err
				}
				dest, err := exp.Copy(args[1], true, a.v.GetBool("link"))
				if err != nil {
					return err
				}
				ws.Refresh()
				fmt.Fprintf(cmd.OutOrStdout(), "Copied %s\n", dest)
				return nil
			})
		},
	}
	cmd.Flags().Bool("link", false, "Share the member traces instead of copying them")
	return cmd
}

func (a *app) newExperimentRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename an experiment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				exp, err := findExperiment(ws, args[0])
				if err != nil {
					return err
				}
				return exp.Rename(args[1])
			})
		},
	}
}

func (a *app) newExperimentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an experiment and its supplementary files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				exp, err := findExperiment(ws, args[0])
				if err != nil {
					return err
				}
				return exp.Delete()
			})
		},
	}
}
