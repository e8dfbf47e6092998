package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"YubiAge/internal/agecli"
	"YubiAge/internal/app"
	"YubiAge/internal/batch"
	"YubiAge/internal/config"
	"YubiAge/internal/log"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	agePath     string
	directories string
	strictKeys  bool
	verbose     bool
	debug       bool
	logFile     string
	quiet       bool

	logCloser io.Closer
}

// activeSession is cancelled on SIGINT/SIGTERM.
var (
	activeMu      sync.Mutex
	activeSession *app.Session
)

func setActive(s *app.Session) {
	activeMu.Lock()
	activeSession = s
	activeMu.Unlock()
}

// newRootCmd builds the command tree.
func newRootCmd(version string) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "yubiage",
		Short: "Drop-driven file encryption with the age tool",
		Long: `YubiAge encrypts and decrypts files by driving the external age tool.

Plain files and folders are encrypted to one or more recipient key files,
producing <name>.age (folders become <name>.Dir.age). Files ending in .age
are decrypted with identity files, including hardware-token identities whose
plugin prompts for a PIN or touch in the console.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setupLogging()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logCloser != nil {
				_ = opts.logCloser.Close()
				opts.logCloser = nil
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Settings file (default: user config dir/yubiage/settings.toml)")
	pf.StringVar(&opts.agePath, "age", "", "Path to the age binary (overrides settings)")
	pf.StringVar(&opts.directories, "directories", "", "Folder handling for this run: archive or expand")
	pf.BoolVar(&opts.strictKeys, "strict-keys", false, "Reject key files containing unrecognised tokens")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")
	pf.BoolVar(&opts.debug, "debug", false, "Log debug details to stderr")
	pf.StringVar(&opts.logFile, "log-file", "", "Append logs to this file instead of stderr")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress output")

	root.AddCommand(
		newEncryptCmd(opts),
		newDecryptCmd(opts),
		newDropCmd(opts),
		newKeysCmd(opts),
		newVersionCmd(version),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			activeMu.Lock()
			s := activeSession
			activeMu.Unlock()
			if s == nil || !s.Running() {
				os.Exit(130)
			}
			fmt.Fprintln(os.Stderr, "\nCancelling operation...")
			s.Cancel()
		}
	}()

	root := newRootCmd(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorPrefix()+err.Error())
		return 1
	}
	return 0
}

func (o *globalOptions) setupLogging() error {
	level := log.LevelWarn
	switch {
	case o.debug:
		level = log.LevelDebug
	case o.verbose:
		level = log.LevelInfo
	}

	if o.logFile != "" {
		closer, err := log.EnableFileLogging(o.logFile, level)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		o.logCloser = closer
		return nil
	}
	if o.verbose || o.debug {
		log.EnableTerminalLogging(level)
	} else {
		log.SetLogger(nil)
	}
	return nil
}

func (o *globalOptions) store() (*config.Store, error) {
	path := o.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return config.NewStore(path), nil
}

// loadSettings reads the settings file and applies this run's flag overrides.
func (o *globalOptions) loadSettings(cmd *cobra.Command) (*config.Settings, *config.Store, error) {
	store, err := o.store()
	if err != nil {
		return nil, nil, err
	}
	settings, err := store.Load()
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("age") {
		settings.Tool.Path = o.agePath
	}
	if flags.Changed("directories") {
		if _, err := batch.ParseDirectoryPolicy(o.directories); err != nil {
			return nil, nil, err
		}
		settings.Policy.Directories = o.directories
	}
	if flags.Changed("strict-keys") {
		settings.Policy.StrictKeys = o.strictKeys
	}
	return settings, store, nil
}

// session builds a Session wired to the configured age binary. With
// needTool set, a missing binary is reported before anything is staged.
func (o *globalOptions) session(cmd *cobra.Command, needTool bool) (*app.Session, error) {
	settings, store, err := o.loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	logger := log.GetLogger()
	runner := agecli.NewRunner(settings.Tool.Path)
	runner.Logger = logger
	if needTool {
		if _, err := runner.Path(); err != nil {
			return nil, err
		}
	}

	s := app.NewSession(settings, keysOnlyStore{store}, runner, logger)
	setActive(s)
	return s, nil
}

// keysOnlyStore persists key changes without writing this run's flag
// overrides back to the settings file.
type keysOnlyStore struct {
	*config.Store
}

func (k keysOnlyStore) Save(settings *config.Settings) error {
	onDisk, err := k.Store.Load()
	if err != nil {
		return err
	}
	onDisk.Keys = settings.Keys
	return k.Store.Save(onDisk)
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "yubiage %s\n", version)
		},
	}
}
