package batch

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"YubiAge/internal/errors"
	"YubiAge/internal/fileops"
	"YubiAge/internal/log"
	"YubiAge/internal/util"
)

// EncryptOutput is where age writes the ciphertext for item.
func EncryptOutput(item WorkItem) string {
	return item.InputPath + util.EncryptedSuffix
}

// DecryptBase strips ".age" (any case) from input, or appends ".decrypted"
// when it has no such suffix.
func DecryptBase(input string) string {
	if hasAgeSuffix(input) {
		return input[:len(input)-len(util.EncryptedSuffix)]
	}
	return input + util.DecryptedSuffix
}

// DecryptTemp is where age writes the plaintext before it gets its final name.
func DecryptTemp(input string) string {
	return DecryptBase(input) + ".temp_decrypted_" + strconv.Itoa(os.Getpid())
}

// dirSuffix is ".Dir.age", matched case-insensitively.
var dirSuffix = strings.ToLower(util.DirMarker + util.EncryptedSuffix)

// Resolver moves age's raw outputs to their final names.
type Resolver struct {
	// AvoidCollisions keeps existing files when decrypting by picking
	// "name (n).ext" instead of overwriting.
	AvoidCollisions bool

	Logger log.Logger
}

func (r *Resolver) logger() log.Logger {
	if r.Logger == nil {
		return log.GetLogger()
	}
	return r.Logger
}

// FinalizeEncrypt returns the final ciphertext path for a successful
// invocation. Staged directory archives are renamed to "<dir>.Dir.age",
// replacing any earlier file of that name.
//
// before is the raw output as it was ahead of the invocation, nil if it did
// not exist. An unchanged file counts as missing output.
func (r *Resolver) FinalizeEncrypt(item WorkItem, before os.FileInfo) (string, error) {
	raw := EncryptOutput(item)
	after, err := os.Stat(raw)
	if err != nil || unchanged(before, after) {
		return "", errors.NewFileError("stat", raw, errors.ErrOutputMissing)
	}
	if !item.Archived {
		return raw, nil
	}

	final := filepath.Clean(item.OriginalPath) + util.DirMarker + util.EncryptedSuffix
	if err := os.Rename(raw, final); err != nil {
		return "", errors.NewFileError("rename", raw, err)
	}
	r.logger().Debug("renamed directory ciphertext",
		log.String("from", raw),
		log.String("to", final))
	return final, nil
}

func unchanged(before, after os.FileInfo) bool {
	return before != nil &&
		os.SameFile(before, after) &&
		before.Size() == after.Size() &&
		before.ModTime().Equal(after.ModTime())
}

// FinalizeDecrypt moves the plaintext age wrote to temp onto its final name.
// Decrypted directory archives keep their ".tar.gz" form.
func (r *Resolver) FinalizeDecrypt(item WorkItem, temp string) (string, error) {
	if _, err := os.Stat(temp); err != nil {
		return "", errors.NewFileError("stat", temp, errors.ErrOutputMissing)
	}

	input := item.InputPath
	final := DecryptBase(input)
	if strings.HasSuffix(strings.ToLower(input), dirSuffix) {
		final = input[:len(input)-len(dirSuffix)] + util.ArchiveSuffix
	}
	if r.AvoidCollisions {
		final = fileops.UniquePath(final)
	}

	if err := os.Rename(temp, final); err != nil {
		return "", errors.NewFileError("rename", temp, err)
	}
	r.logger().Debug("placed decrypted output",
		log.String("from", temp),
		log.String("to", final))
	return final, nil
}
