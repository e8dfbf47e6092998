// Package util provides common utilities and constants for YubiAge.
//
// This package contains:
//   - Size constants (KiB, MiB, GiB, TiB) for byte calculations
//   - File naming constants shared by the archiver, key loader and output resolver
//   - Size and time formatting functions (Sizeify, Timeify, ETA)
//   - Pooled buffers for archive copying and key-file scanning
//
// All utilities are stateless and thread-safe.
package util

// Size constants for byte calculations
const (
	KiB = 1 << 10 // 1024
	MiB = 1 << 20 // 1,048,576
	GiB = 1 << 30 // 1,073,741,824
	TiB = 1 << 40 // 1,099,511,627,776
)

// Naming conventions understood by the external tool and by users.
const (
	// EncryptedSuffix is appended by age to encrypted outputs.
	EncryptedSuffix = ".age"

	// DirMarker sits between a directory name and EncryptedSuffix
	// ("photos.Dir.age") when the plaintext was a staged directory archive.
	DirMarker = ".Dir"

	// ArchiveSuffix is the extension of staged directory archives.
	ArchiveSuffix = ".tar.gz"

	// DecryptedSuffix is appended when a decrypt input lacks EncryptedSuffix.
	DecryptedSuffix = ".decrypted"

	// CommentPrefix marks ignored lines in key files.
	CommentPrefix = "#"
)
