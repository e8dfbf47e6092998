package cli

import (
	"github.com/spf13/cobra"

	"YubiAge/internal/app"
	"YubiAge/internal/batch"
)

func newEncryptCmd(opts *globalOptions) *cobra.Command {
	var (
		keys     []string
		remember bool
	)
	cmd := &cobra.Command{
		Use:   "encrypt [flags] <file-or-folder>...",
		Short: "Encrypt files and folders to recipient keys",
		Long: `Encrypt each file to <name>.age and each folder to <name>.Dir.age.

Recipient key files hold one age recipient per line (X25519, SSH or plugin
recipients such as age1yubikey...). Lines starting with # are ignored.
Without -k the remembered recipients from the settings file are used.

Examples:
  # Encrypt two files to a recipient file
  yubiage encrypt -k team.pub report.pdf notes.txt

  # Encrypt a folder and remember the keys for later runs
  yubiage encrypt -k me.pub -k backup.pub --remember photos/

  # Encrypt with the remembered keys
  yubiage encrypt secrets.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session(cmd, true)
			if err != nil {
				return err
			}
			defer setActive(nil)

			rep := NewReporter(cmd.ErrOrStderr(), opts.quiet)
			job, err := s.Start(app.StartRequest{
				Paths:    args,
				Keys:     keys,
				Remember: remember,
				Require:  app.RequireEncrypt,
			})
			if err != nil {
				return err
			}
			res, err := rep.Follow(job)
			return rep.Summary(batch.ModeEncrypt, res, err)
		},
	}
	cmd.Flags().StringArrayVarP(&keys, "keys", "k", nil, "Recipient key file (can be specified multiple times)")
	cmd.Flags().BoolVar(&remember, "remember", false, "Remember these recipient keys for later runs")
	return cmd
}

func newDecryptCmd(opts *globalOptions) *cobra.Command {
	var identities []string
	cmd := &cobra.Command{
		Use:   "decrypt [flags] <file.age>...",
		Short: "Decrypt .age files with identity keys",
		Long: `Decrypt .age files next to themselves, stripping the .age suffix.
Existing files are never overwritten unless avoid_collisions is disabled in
the settings; a " (1)" style suffix is added instead. Folders encrypted as
<name>.Dir.age come back as <name>.tar.gz.

By default only one file is decrypted per run, so that hardware-token PIN
and touch prompts are not repeated. Set policy.single_decrypt = false to
allow batches.

Identity files are used for this run only and never remembered.

Examples:
  yubiage decrypt -i yubikey-identity.txt report.pdf.age`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session(cmd, true)
			if err != nil {
				return err
			}
			defer setActive(nil)

			rep := NewReporter(cmd.ErrOrStderr(), opts.quiet)
			job, err := s.Start(app.StartRequest{
				Paths:   args,
				Keys:    identities,
				Require: app.RequireDecrypt,
			})
			if err != nil {
				return err
			}
			rep.Notice("Check this console for PIN or touch prompts.")
			res, err := rep.Follow(job)
			return rep.Summary(batch.ModeDecrypt, res, err)
		},
	}
	cmd.Flags().StringArrayVarP(&identities, "identity", "i", nil, "Identity key file (can be specified multiple times)")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}
