// Package fileops stages inputs for the external tool and finalizes its outputs:
// directory archives, temporary artifact tracking and collision-free naming.
package fileops

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"YubiAge/internal/errors"
	"YubiAge/internal/log"
	"YubiAge/internal/util"
)

// ProgressFunc is called during file operations to report progress.
// Parameters: progress (0.0-1.0 completion fraction), info (human-readable status).
type ProgressFunc func(progress float32, info string)

// StatusFunc is called to report status messages (e.g., "Archiving photos...").
type StatusFunc func(status string)

// ArchiveOptions configures tar.gz creation
type ArchiveOptions struct {
	Dir        string // Directory to archive
	OutputPath string // Output path (empty = ArchivePath(Dir))
	Progress   ProgressFunc
	Status     StatusFunc
	Logger     log.Logger
}

// ArchivePath returns the staging path for a directory archive: a sibling of
// the directory named "<base>_temp_<pid>.tar.gz", unique per process.
func ArchivePath(dir string) string {
	dir = filepath.Clean(dir)
	name := filepath.Base(dir) + "_temp_" + strconv.Itoa(os.Getpid()) + util.ArchiveSuffix
	return filepath.Join(filepath.Dir(dir), name)
}

// CreateTarGz packages opts.Dir into a gzip-compressed tar archive whose entries
// are rooted at the directory's base name. Returns the archive path.
// On error or cancellation, the partial output file is removed.
func CreateTarGz(ctx context.Context, opts ArchiveOptions) (string, error) {
	dir := filepath.Clean(opts.Dir)
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", errors.NewFileError("archive", dir, err)
	}
	if !info.IsDir() {
		return "", errors.NewFileError("archive", dir, fmt.Errorf("not a directory"))
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = ArchivePath(dir)
	}

	if opts.Status != nil {
		opts.Status(fmt.Sprintf("Archiving %s...", filepath.Base(dir)))
	}

	// Calculate total size for progress
	totalSize, err := treeSize(dir)
	if err != nil {
		return "", errors.NewFileError("archive", dir, err)
	}

	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", errors.NewFileError("archive", outputPath, err)
	}

	gz := gzip.NewWriter(file)
	tw := tar.NewWriter(gz)

	// Helper to cleanup on error
	cleanup := func() {
		_ = tw.Close()
		_ = gz.Close()
		_ = file.Close()
		_ = os.Remove(outputPath)
	}

	start := time.Now()
	root := filepath.Base(dir)
	var done int64
	buf := util.GetMiBBuffer()
	defer util.PutMiBBuffer(buf)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return errors.ErrCancelled
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(root, rel))

		var link string
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		case info.IsDir(), info.Mode().IsRegular():
		default:
			logger.Warn("skipping special file", log.String("path", path))
			return nil
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("create header for %s: %w", path, err)
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		n, err := copyFile(tw, path, buf)
		done += n
		if err != nil {
			return err
		}
		if opts.Progress != nil && totalSize > 0 {
			opts.Progress(float32(done)/float32(totalSize), util.Sizeify(done))
		}
		return nil
	})
	if walkErr != nil {
		cleanup()
		if walkErr == errors.ErrCancelled {
			return "", walkErr
		}
		return "", errors.NewFileError("archive", dir, walkErr)
	}

	// Close writers and file on success
	if err := tw.Close(); err != nil {
		cleanup()
		return "", errors.NewFileError("archive", outputPath, err)
	}
	if err := gz.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(outputPath)
		return "", errors.NewFileError("archive", outputPath, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(outputPath)
		return "", errors.NewFileError("archive", outputPath, err)
	}

	logger.Info("archived directory",
		log.String("dir", dir),
		log.String("archive", outputPath),
		log.String("size", util.Sizeify(done)),
		log.Duration("elapsed", time.Since(start)))
	return outputPath, nil
}

func copyFile(w io.Writer, path string, buf []byte) (int64, error) {
	fin, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fin.Close()

	n, err := io.CopyBuffer(w, fin, buf)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", path, err)
	}
	return n, nil
}

func treeSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
