package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/session"
)

const dateLayout = "2006-01-02"

// sessionsFile is the layout of `sessions import` files.
type sessionsFile struct {
	Sessions []session.NewSession `yaml:"sessions"`
}

func (cli *commandLine) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage academic sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.listSessions(cmd.Context())
		},
	}

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cur, err := cli.sessionSvc.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if cur == nil {
				_, _ = fmt.Fprintln(cli.out, "no current session")
				return nil
			}
			_, _ = fmt.Fprintf(cli.out, "current session: %s (%s)\n", cur.DisplayName(), cur.ID)
			return nil
		},
	}

	setCurrent := &cobra.Command{
		Use:   "set-current ID",
		Short: "Mark a session as the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cli.sessionSvc.SetCurrent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "current session: %s (%s)\n", sess.DisplayName(), sess.ID)
			return nil
		},
	}

	var file string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Create the sessions listed in a YAML file. Existing sessions are skipped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				_ = cmd.Usage()
				return errHelp
			}
			return cli.importSessions(cmd.Context(), file)
		},
	}
	imp.Flags().StringVarP(&file, "file", "f", "", "YAML file holding a `sessions` list")

	cmd.AddCommand(list, reconcile, setCurrent, imp)
	return cmd
}

func (cli *commandLine) listSessions(ctx context.Context) error {
	sessions, err := cli.sessionSvc.QueryAll(ctx, nil, nil)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, _ = fmt.Fprintln(cli.out, "no sessions")
		return nil
	}

	now := session.NowFunc()
	tw := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSESSION\tSTART\tEND\tSTATUS\tCURRENT")
	for _, s := range sessions {
		var cur string
		if s.IsCurrent {
			cur = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.DisplayName(), s.StartDate.Format(dateLayout), s.EndDate.Format(dateLayout), s.Status(now), cur)
	}
	return tw.Flush()
}

func (cli *commandLine) importSessions(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening sessions file")
	}
	defer func() { _ = f.Close() }()

	var data sessionsFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(&data); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}

	var created, skipped int
	for i, ns := range data.Sessions {
		sess, err := cli.sessionSvc.Create(ctx, ns)
		if err != nil {
			if core.IsConflictError(err) {
				skipped++
				_, _ = fmt.Fprintf(cli.out, "skipped %s %d: already exists\n", ns.Name, ns.Year)
				continue
			}
			return errors.Wrapf(err, "session #%d", i+1)
		}
		created++
		_, _ = fmt.Fprintf(cli.out, "created %s (%s)\n", sess.DisplayName(), sess.ID)
	}
	_, _ = fmt.Fprintf(cli.out, "%d created, %d skipped\n", created, skipped)
	return nil
}
