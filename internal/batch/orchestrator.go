package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"YubiAge/internal/agecli"
	"YubiAge/internal/errors"
	"YubiAge/internal/fileops"
	"YubiAge/internal/keyfile"
	"YubiAge/internal/log"
)

// preProcessName labels a failure that aborted the batch before any item ran.
const preProcessName = "Pre-process"

// ToolRunner runs one age invocation. *agecli.Runner satisfies it.
type ToolRunner interface {
	Run(ctx context.Context, args []string) (*agecli.Result, error)
}

var _ ToolRunner = (*agecli.Runner)(nil)

// Config tunes an Orchestrator.
type Config struct {
	AvoidCollisions bool // see Resolver.AvoidCollisions
	StrictKeys      bool // see keyfile.Options.Strict
}

// Orchestrator runs batches sequentially, one age process at a time.
type Orchestrator struct {
	runner   ToolRunner
	resolver *Resolver
	strict   bool
	logger   log.Logger
}

// NewOrchestrator creates an Orchestrator. A nil logger uses the package logger.
func NewOrchestrator(runner ToolRunner, cfg Config, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Orchestrator{
		runner:   runner,
		resolver: &Resolver{AvoidCollisions: cfg.AvoidCollisions, Logger: logger},
		strict:   cfg.StrictKeys,
		logger:   logger,
	}
}

// Run processes every input of req in order and reports progress to rep,
// which may be nil.
//
// Per-item failures are recorded in the Result and do not stop the batch.
// If staging directories fails, nothing is invoked: the Result has
// TotalCount 0 and the staging error is returned alongside it. Cancelling
// ctx stops the batch before the next item and kills a running child.
// Temporary files are removed on every path out of Run.
func (o *Orchestrator) Run(ctx context.Context, req Request, rep Reporter) (*Result, error) {
	if rep == nil {
		rep = nopReporter{}
	}
	req.Inputs = append([]string(nil), req.Inputs...)
	req.Keys = append([]string(nil), req.Keys...)

	logger := o.logger.WithFields(
		log.String("batch", uuid.NewString()),
		log.String("mode", req.Mode.String()))
	artifacts := fileops.NewArtifacts(logger)
	defer artifacts.Cleanup()

	res := &Result{ClearKeys: req.Mode == ModeEncrypt}
	start := time.Now()

	items, err := o.prepare(ctx, req, artifacts, rep, logger)
	if err != nil {
		path := ""
		var fileErr *errors.FileError
		if errors.As(err, &fileErr) {
			path = fileErr.Path
		}
		res.Failures = append(res.Failures, Failure{Name: preProcessName, Path: path, Err: err})
		res.Cancelled = errors.IsCancelled(err)
		rep.FileFailed(preProcessName, err)
		logger.Error("pre-processing failed", log.Err(err))
		return res, err
	}

	res.TotalCount = len(items)
	logger.Info("batch started",
		log.Int("items", res.TotalCount),
		log.Int("keys", len(req.Keys)))

	for i, item := range items {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}

		rep.SetStatus(fmt.Sprintf("%s %s...", statusVerb(req.Mode), item.Name()))
		itemLogger := logger.WithFields(log.String("file", item.Name()))

		out, err := o.process(ctx, req, item, artifacts, itemLogger)
		if errors.IsCancelled(err) {
			res.Cancelled = true
			break
		}
		if err != nil {
			res.Failures = append(res.Failures, Failure{Name: item.Name(), Path: item.OriginalPath, Err: err})
			rep.FileFailed(item.Name(), err)
			itemLogger.Warn("item failed", log.Err(err))
		} else {
			res.SuccessCount++
			itemLogger.Info("item done", log.String("output", out))
		}

		rep.SetProgress(float32(i+1)/float32(res.TotalCount), fmt.Sprintf("%d/%d", i+1, res.TotalCount))
	}

	logger.Info("batch finished",
		log.Int("succeeded", res.SuccessCount),
		log.Int("failed", res.Failed()),
		log.Bool("cancelled", res.Cancelled),
		log.Duration("elapsed", time.Since(start)))
	return res, nil
}

// prepare turns inputs into work items, staging directories as archives when
// encrypting. Archives are tracked before they are written.
func (o *Orchestrator) prepare(ctx context.Context, req Request, artifacts *fileops.Artifacts, rep Reporter, logger log.Logger) ([]WorkItem, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.Invalid("inputs", errors.ErrNoValidPaths)
	}
	items := make([]WorkItem, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		item := WorkItem{OriginalPath: in, InputPath: in}

		if req.Mode == ModeEncrypt {
			info, err := os.Stat(in)
			if err != nil {
				return nil, errors.NewFileError("stat", in, err)
			}
			if info.IsDir() {
				archive := fileops.ArchivePath(in)
				artifacts.Track(archive)
				if _, err := fileops.CreateTarGz(ctx, fileops.ArchiveOptions{
					Dir:        in,
					OutputPath: archive,
					Status:     rep.SetStatus,
					Progress:   archiveStatus(rep, filepath.Base(in)),
					Logger:     logger,
				}); err != nil {
					return nil, err
				}
				item.InputPath = archive
				item.Archived = true
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (o *Orchestrator) process(ctx context.Context, req Request, item WorkItem, artifacts *fileops.Artifacts, logger log.Logger) (string, error) {
	if item.Archived {
		// The staged archive is only needed for this invocation.
		defer artifacts.Release(item.InputPath)
	}
	if req.Mode == ModeDecrypt {
		return o.decrypt(ctx, req, item, artifacts)
	}
	return o.encrypt(ctx, req, item, artifacts, logger)
}

func (o *Orchestrator) encrypt(ctx context.Context, req Request, item WorkItem, artifacts *fileops.Artifacts, logger log.Logger) (string, error) {
	recipients, err := keyfile.WriteRecipients(req.Keys, keyfile.Options{
		Dir:    filepath.Dir(item.InputPath),
		Strict: o.strict,
		Logger: logger,
	})
	if err != nil {
		return "", err
	}
	artifacts.Track(recipients)
	defer artifacts.Release(recipients)

	// A ciphertext created by this invocation is partial until it is
	// finalized. One that was already there is never removed.
	raw := EncryptOutput(item)
	before, statErr := os.Stat(raw)
	if statErr != nil {
		before = nil
		artifacts.Track(raw)
		defer artifacts.Release(raw)
	}

	res, err := o.runner.Run(ctx, agecli.EncryptArgs(raw, recipients, item.InputPath))
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	out, err := o.resolver.FinalizeEncrypt(item, before)
	if err != nil {
		return "", err
	}
	artifacts.Keep(raw)
	return out, nil
}

func (o *Orchestrator) decrypt(ctx context.Context, req Request, item WorkItem, artifacts *fileops.Artifacts) (string, error) {
	identities, err := keyfile.Identities(req.Keys)
	if err != nil {
		return "", err
	}

	temp := DecryptTemp(item.InputPath)
	artifacts.Track(temp)
	defer artifacts.Release(temp)

	res, err := o.runner.Run(ctx, agecli.DecryptArgs(temp, identities, item.InputPath))
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	return o.resolver.FinalizeDecrypt(item, temp)
}

// archiveStatus reports archiving progress as status lines, one per whole
// percent. Batch progress stays reserved for finished items.
func archiveStatus(rep Reporter, name string) fileops.ProgressFunc {
	last := -1
	return func(p float32, size string) {
		pct := int(p * 100)
		if pct == last {
			return
		}
		last = pct
		rep.SetStatus(fmt.Sprintf("Archiving %s... %d%% (%s)", name, pct, size))
	}
}

func statusVerb(m Mode) string {
	if m == ModeDecrypt {
		return "Decrypting"
	}
	return "Encrypting"
}
