package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain all pending local changes to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.SyncNow(cmd.Context())
			if err != nil {
				return err
			}

			if res.Offline {
				fmt.Fprintln(cmd.OutOrStdout(), "device offline, nothing synced")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "synced: %d succeeded, %d failed\n", res.Succeeded, res.Failed)

			for _, d := range res.Details {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", d)
			}

			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records (tombstones excluded)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.engine.GetAll(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				return enc.Encode(records)
			}

			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
					r.Key(), r.SyncStatus, time.UnixMilli(r.LastModified).Format(time.RFC3339))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one record by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.engine.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			return enc.Encode(rec)
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync health for the configured user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.engine.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total:        %d\n", s.Total)
			fmt.Fprintf(out, "active:       %d\n", s.Active)
			fmt.Fprintf(out, "pending sync: %d\n", s.PendingSync)
			fmt.Fprintf(out, "conflicts:    %d\n", s.Conflicts)
			fmt.Fprintf(out, "failed sync:  %d\n", s.FailedSync)
			fmt.Fprintf(out, "failed ops:   %d\n", s.FailedOperations)

			if s.LastSync > 0 {
				fmt.Fprintf(out, "last sync:    %s\n", time.UnixMilli(s.LastSync).Format(time.RFC3339))
			} else {
				fmt.Fprintln(out, "last sync:    never")
			}

			return nil
		},
	}
}

func newCreateCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a record from a JSON payload file (or stdin with -)",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.engine.Create(cmd.Context(), payload)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", rec.Key(), rec.SyncStatus)

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "payload file, - for stdin")

	return cmd
}

func newUpdateCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a record's payload from a JSON file (or stdin with -)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.engine.Update(cmd.Context(), args[0], payload)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "updated %s (%s)\n", rec.Key(), rec.SyncStatus)

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "payload file, - for stdin")

	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])

			return nil
		},
	}
}

func newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Flip failed records back to pending for the next sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.engine.RetryFailed(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d records queued for retry\n", n)

			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Wipe all local state for the configured user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Clear(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "local state cleared")

			return nil
		},
	}
}

func readPayload(stdin io.Reader, file string) (json.RawMessage, error) {
	if file == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

		return data, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	return data, nil
}
