package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-trace-project/internal/application/workspace"
	"github.com/penwyp/go-trace-project/internal/core/model"
	"github.com/penwyp/go-trace-project/internal/core/storage"
	"github.com/penwyp/go-trace-project/internal/presentation/formatter"
	"github.com/penwyp/go-trace-project/internal/util"
)

func (a *app) newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Manage the traces of the project",
	}
	cmd.AddCommand(
		a.newTraceImportCmd(),
		a.newTraceSetTypeCmd(),
		a.newTraceCopyCmd(),
		a.newTraceRenameCmd(),
		a.newTraceDeleteCmd(),
		a.newTraceOpenCmd(),
	)
	return cmd
}

// withWorkspace opens the configured project around fn.
func (a *app) withWorkspace(fn func(ws *workspace.Workspace) error) error {
	ws, err := a.openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ws)
}

func findTrace(ws *workspace.Workspace, path string) (*model.Trace, error) {
	t, ok := ws.Project().Find(path).(*model.Trace)
	if !ok {
		return nil, fmt.Errorf("no trace at %s", path)
	}
	return t, nil
}

func (a *app) newTraceImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Copy or link a file into the traces folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				if err := ws.Project().CreateFolderStructure(); err != nil {
					return err
				}
				src := expandPath(args[0])
				dest := storage.Join(model.TracesFolderName, a.v.GetString("folder"), filepath.Base(src))
				if err := importFile(src, ws.Project().AbsPath(dest), a.v.GetBool("link")); err != nil {
					return err
				}
				if typeID := a.v.GetString("type"); typeID != "" {
					if err := ws.Project().SetTraceType(dest, typeID, false); err != nil {
						return err
					}
				}
				ws.Refresh()
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", dest)
				return nil
			})
		},
	}
	cmd.Flags().String("type", "", "Trace type id to bind")
	cmd.Flags().String("folder", "", "Sub folder of the traces folder")
	cmd.Flags().Bool("link", false, "Link the file instead of copying it")
	return cmd
}

func importFile(src, dst string, link bool) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s already exists", dst)
	}
	if err := ensureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	if link {
		return os.Symlink(src, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (a *app) newTraceSetTypeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-type <path> <type>",
		Short: "Bind a trace type to a trace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				if _, ok := ws.TraceTypes().Get(args[1]); !ok {
					return fmt.Errorf("unknown trace type %s", args[1])
				}
				return ws.Project().SetTraceType(args[0], args[1], true)
			})
		},
	}
}

func (a *app) newTraceCopyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy <path> <new-name>",
		Short: "Copy a trace with its supplementary files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				t, err := findTrace(ws, args[0])
				if err != nil {
					return err
				}
				if a.v.GetBool("link") {
					dest, err := t.Copy(args[1], true, true)
					if err != nil {
						return err
					}
					ws.Refresh()
					fmt.Fprintf(cmd.OutOrStdout(), "Linked %s\n", dest)
					return nil
				}
				c, err := t.CopyTrace(args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Copied %s\n", c.Path())
				return nil
			})
		},
	}
	cmd.Flags().Bool("link", false, "Create a link instead of a full copy")
	return cmd
}

func (a *app) newTraceRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a trace and the references to it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				t, err := findTrace(ws, args[0])
				if err != nil {
					return err
				}
				return t.Rename(args[1])
			})
		},
	}
}

func (a *app) newTraceDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a trace, leaving experiments that reference it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				t, err := findTrace(ws, args[0])
				if err != nil {
					return err
				}
				if err := t.Delete(a.v.GetBool("overwrite")); err != nil {
					return err
				}
				ws.Refresh()
				util.LogInfof("Deleted trace %s", args[0])
				return nil
			})
		},
	}
	cmd.Flags().Bool("overwrite", false, "Keep experiment references, as done before replacing the trace")
	return cmd
}

func (a *app) newTraceOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Open a trace or experiment and print its analyses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(func(ws *workspace.Workspace) error {
				if _, err := ws.OpenTrace(args[0]); err != nil {
					return err
				}
				f, err := formatter.New(a.v.GetString("output"), cmd.OutOrStdout(), a.v.GetBool("color"))
				if err != nil {
					return err
				}
				return f.Format(formatter.Snapshot(ws.Project().Find(args[0])))
			})
		},
	}
}
