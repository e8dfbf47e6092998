package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"YubiAge/internal/batch"
	"YubiAge/internal/errors"
)

func newDropCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <path>...",
		Short: "Interactive drop: classify paths, then ask for key files",
		Long: `Behave like dropping files on the YubiAge window.

The dropped paths decide the mode. Plain files and folders are encrypted:
with remembered recipients the batch starts at once, otherwise key files are
read from standard input, one path per line (quotes are stripped, so paths
pasted from a file manager work). An empty line ends the list. Recipient keys
entered here are remembered. .age files are decrypted and always ask for
identity files, which are forgotten afterwards.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session(cmd, true)
			if err != nil {
				return err
			}
			defer setActive(nil)

			out := cmd.ErrOrStderr()
			rep := NewReporter(out, opts.quiet)

			if len(args) == 0 {
				for _, hint := range s.DropHints() {
					fmt.Fprintln(out, hint)
				}
				return errors.Invalid("paths", errors.ErrNoValidPaths)
			}

			job, err := s.DropFiles(args)
			if err != nil {
				return fmt.Errorf("%s: %w", s.Status(), err)
			}
			mode := s.Mode()
			rep.Notice("%s", s.ModeLabel())

			in := bufio.NewScanner(cmd.InOrStdin())
			for job == nil {
				fmt.Fprintln(out, s.Status())
				fmt.Fprint(out, "Key files (empty line to finish): ")
				keys, err := readPaths(in, out)
				if err != nil {
					return err
				}
				if len(keys) == 0 {
					_ = s.Reset()
					if mode == batch.ModeDecrypt {
						return errors.Invalid("keys", errors.ErrNoIdentities)
					}
					return errors.Invalid("keys", errors.ErrNoRecipients)
				}
				job, err = s.DropKeys(keys)
				if err != nil && !errors.IsValidation(err) {
					return err
				}
			}

			res, err := rep.Follow(job)
			sumErr := rep.Summary(mode, res, err)
			rep.Notice("%s", s.Status())
			return sumErr
		},
	}
}

// readPaths reads one path per line until an empty line or EOF.
func readPaths(in *bufio.Scanner, prompt io.Writer) ([]string, error) {
	var paths []string
	for in.Scan() {
		line := cleanPath(in.Text())
		if line == "" {
			break
		}
		paths = append(paths, line)
		fmt.Fprint(prompt, "> ")
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

// cleanPath trims whitespace and one layer of surrounding quotes or braces.
func cleanPath(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '{' && last == '}') {
			s = s[1 : len(s)-1]
		}
	}
	return s
}
