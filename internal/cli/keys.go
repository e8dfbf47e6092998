package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"YubiAge/internal/keyfile"
)

func newKeysCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage remembered recipient keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List remembered recipient key files and their contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, err := opts.loadSettings(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			paths := settings.KeyPaths()
			if len(paths) == 0 {
				fmt.Fprintln(out, "No recipient keys remembered.")
				return nil
			}
			for _, p := range paths {
				fmt.Fprintln(out, p)
				tokens, err := keyfile.Inspect(p)
				if err != nil {
					fmt.Fprintf(out, "  %s\n", failureTag.Sprint(err.Error()))
					continue
				}
				for _, t := range tokens {
					kind := t.Kind.String()
					if plugin := t.Plugin(); plugin != "" {
						kind += " (" + plugin + ")"
					}
					fmt.Fprintf(out, "  %-20s %s\n", kind, abbreviate(t.Value))
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key-file>...",
		Short: "Remember recipient key files for encryption",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session(cmd, false)
			if err != nil {
				return err
			}
			defer setActive(nil)
			if err := s.SetRecipients(args); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Status())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget remembered recipient keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session(cmd, false)
			if err != nil {
				return err
			}
			defer setActive(nil)
			if err := s.ClearKeys(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Status())
			return nil
		},
	})
	return cmd
}

func abbreviate(token string) string {
	if len(token) <= 48 {
		return token
	}
	return token[:24] + "..." + token[len(token)-16:]
}
