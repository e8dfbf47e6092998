package app

import (
	"fmt"

	"YubiAge/internal/errors"
)

// Message identifies a user-facing status line. Front-ends render it with
// Format and may substitute their own text per kind.
type Message int

const (
	MsgReady      Message = iota // remembered recipient count
	MsgLoadedKeys                // key count
	MsgEncryptMode
	MsgDecryptMode
	MsgStartProcess // mode
	MsgFinishedKeys // key count
	MsgTerminated
	MsgKeyLoadFailed
	MsgFileKeyMissing
	MsgMixedFiles
	MsgInvalidKeyPath
	MsgWorkerError // error text
	MsgFilesFailed // failure count
	MsgDecryptMulti
	MsgNoValidFiles
	MsgDropEncrypt
	MsgDropDecrypt
	MsgNeedRecipients // file count
	MsgNeedIdentity
	MsgFinished // "Encryption" or "Decryption"
	MsgFailed   // reason
	MsgBusy
	MsgDropDecryptMany
)

var messageText = map[Message]string{
	MsgReady:          "Ready. Pub Keys: %d.",
	MsgLoadedKeys:     "Loaded %d keys.",
	MsgEncryptMode:    "Encrypt Mode",
	MsgDecryptMode:    "Decrypt Mode",
	MsgStartProcess:   "Executing (%s)...",
	MsgFinishedKeys:   "Finished. Keys: %d.",
	MsgTerminated:     "Terminated.",
	MsgKeyLoadFailed:  "Key load failed.",
	MsgFileKeyMissing: "File/Key missing.",
	MsgMixedFiles:     "Do not mix .age file and non-.age file.",
	MsgInvalidKeyPath: "Invalid key path.",
	MsgWorkerError:    "Age Worker Error: %s",
	MsgFilesFailed:    "Failed! %d files failed.",
	MsgDecryptMulti:   "One file at a time (no folders)",
	MsgNoValidFiles:   "No valid files found for encryption.",
	MsgDropEncrypt:    "Drop Files or Folders for Encryption",
	MsgDropDecrypt:    "Drop ONE .age File for Decryption",
	MsgNeedRecipients: "Recipient key needed! (%d files)",
	MsgNeedIdentity:   "Identity key needed! Check the console window for PIN or touch prompts.",
	MsgFinished:       "Finished %s",
	MsgFailed:         "Failed: %s",
	MsgBusy:           "A batch is already running.",

	MsgDropDecryptMany: "Drop .age Files for Decryption",
}

// Format renders m with args substituted.
func (m Message) Format(args ...any) string {
	text, ok := messageText[m]
	if !ok {
		return fmt.Sprintf("Message(%d)", int(m))
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}

func (m Message) String() string {
	return m.Format()
}

// MessageFor picks the status message that explains err.
func MessageFor(err error) Message {
	switch {
	case err == nil:
		return MsgReady
	case errors.Is(err, errors.ErrMixedInputs):
		return MsgMixedFiles
	case errors.Is(err, errors.ErrSingleFileOnly):
		return MsgDecryptMulti
	case errors.Is(err, errors.ErrNoValidFiles):
		return MsgNoValidFiles
	case errors.Is(err, errors.ErrNoValidPaths):
		return MsgFileKeyMissing
	case errors.Is(err, errors.ErrNoRecipients), errors.Is(err, errors.ErrNoIdentities):
		return MsgFileKeyMissing
	case errors.Is(err, errors.ErrEmptyKeyMaterial):
		return MsgKeyLoadFailed
	case errors.Is(err, errors.ErrBusy):
		return MsgBusy
	case errors.IsCancelled(err):
		return MsgTerminated
	}
	return MsgWorkerError
}
