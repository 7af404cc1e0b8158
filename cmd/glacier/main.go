// Command glacier is the command-line front-end of the snapshot engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codimo/glacier/internal/repo"
)

func main() {
	root := &cobra.Command{
		Use:           "glacier",
		Short:         "Version control for large binary asset trees",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newInitCmd(),
		newCommitCmd(),
		newStatusCmd(),
		newCheckoutCmd(),
		newBranchCmd(),
		newLogCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		os.Exit(1)
	}
}

// openRepo opens the repository containing the current directory.
func openRepo() (*repo.Repository, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return repo.Open(wd)
}

func newInitCmd() *cobra.Command {
	var commondir string
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a new repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			r, err := repo.InitExt(dir, repo.InitOptions{Commondir: commondir})
			if err != nil {
				return err
			}
			defer r.Close()
			fmt.Printf("Initialized repository in %s\n", r.Workdir())
			return nil
		},
	}
	cmd.Flags().StringVar(&commondir, "commondir", "", "store repository metadata outside the working directory")
	return cmd
}

func newCommitCmd() *cobra.Command {
	var message string
	var allowEmpty bool
	cmd := &cobra.Command{
		Use:   "commit [path...]",
		Short: "Record a snapshot of the given paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message cannot be empty")
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			idx := r.EnsureIndex(repo.MainIndex)
			for _, p := range args {
				if err := idx.Add(p); err != nil {
					return err
				}
			}
			commit, err := r.CreateCommit(context.Background(), idx, message, repo.CommitOptions{AllowEmpty: allowEmpty})
			if err != nil {
				return err
			}
			fmt.Printf("[%s] %s\n", color.YellowString(commit.Hash.Short()), commit.Message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().BoolVar(&allowEmpty, "allow-empty", false, "permit a commit with no staged changes")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the working tree status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			flags := repo.StatusDefault
			if all {
				flags |= repo.StatusIncludeUnmodified | repo.StatusIncludeIgnored
			}
			entries, err := r.GetStatus(context.Background(), flags)
			if err != nil {
				return err
			}

			head := r.Head()
			if head.Detached() {
				fmt.Printf("HEAD detached at %s\n", head.Hash.Short())
			} else {
				fmt.Printf("On branch %s\n", head.Name)
			}
			for _, e := range entries {
				switch {
				case e.Status&repo.StatusWtNew != 0:
					fmt.Printf("  %s %s\n", color.GreenString("new:"), e.Path)
				case e.Status&repo.StatusWtModified != 0:
					fmt.Printf("  %s %s\n", color.YellowString("modified:"), e.Path)
				case e.Status&repo.StatusWtDeleted != 0:
					fmt.Printf("  %s %s\n", color.RedString("deleted:"), e.Path)
				case e.Status&repo.StatusIgnored != 0:
					fmt.Printf("  %s %s\n", color.HiBlackString("ignored:"), e.Path)
				case e.Status&repo.StatusUnmodified != 0:
					fmt.Printf("  unmodified: %s\n", e.Path)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include unmodified and ignored entries")
	return cmd
}

func newCheckoutCmd() *cobra.Command {
	var detach bool
	var keep bool
	cmd := &cobra.Command{
		Use:   "checkout <branch|commit>",
		Short: "Reconcile the working tree with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			flags := repo.CheckoutDefault
			if keep {
				flags = repo.RestoreDeletedFiles
			}
			if detach {
				flags |= repo.Detach
			}
			if err := r.Checkout(context.Background(), args[0], flags); err != nil {
				return err
			}
			head := r.Head()
			if head.Detached() {
				fmt.Printf("HEAD is now detached at %s\n", head.Hash.Short())
			} else {
				fmt.Printf("Switched to %s\n", color.CyanString(head.Name))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "detach HEAD at the target commit")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep new and modified files, only restore deleted ones")
	return cmd
}

func newBranchCmd() *cobra.Command {
	var deleteName string
	cmd := &cobra.Command{
		Use:   "branch [name]",
		Short: "List or create branches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			if deleteName != "" {
				if err := r.DeleteReference(deleteName); err != nil {
					return err
				}
				fmt.Printf("Deleted branch %s\n", deleteName)
				return nil
			}

			if len(args) == 1 {
				if _, err := r.CreateNewReference(args[0], r.Head().Hash, nil); err != nil {
					return err
				}
				fmt.Printf("Created branch %s\n", color.CyanString(args[0]))
				return nil
			}

			head := r.Head()
			for _, ref := range r.References() {
				marker := " "
				name := ref.Name
				if !head.Detached() && head.Name == ref.Name {
					marker = "*"
					name = color.GreenString(name)
				}
				fmt.Printf("%s %s %s\n", marker, name, ref.Hash.Short())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&deleteName, "delete", "d", "", "delete the named branch")
	return cmd
}

func newLogCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the commit history of HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			for _, c := range r.GetCommitHistory(limit) {
				fmt.Printf("%s %s %s\n",
					color.YellowString(c.Hash.Short()),
					c.Date.Format("2006-01-02 15:04"),
					c.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "limit the number of commits shown")
	return cmd
}
