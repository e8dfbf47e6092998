package keyfile

import (
	"regexp"
	"strings"

	"filippo.io/age"
	"golang.org/x/crypto/ssh"
)

// Kind identifies the recipient format of a key-file token.
type Kind int

const (
	KindUnknown Kind = iota
	KindX25519       // native age1… recipient
	KindSSH          // ssh-ed25519 / ssh-rsa authorized_keys line
	KindPlugin       // age1<plugin>1… recipient, e.g. age-plugin-yubikey
)

func (k Kind) String() string {
	switch k {
	case KindX25519:
		return "x25519"
	case KindSSH:
		return "ssh"
	case KindPlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// pluginRecipient matches Bech32 strings with an "age1<name>" prefix.
// The data part never contains '1', so the greedy name stops at the separator.
var pluginRecipient = regexp.MustCompile(`^age1([a-z0-9._+-]+)1[qpzry9x8gf2tvdw0s3jn54khce6mua7l]{6,}$`)

// Token is one recipient line of a key file.
type Token struct {
	Value string
	Kind  Kind
}

// Plugin returns the plugin name of a KindPlugin token, or "".
func (t Token) Plugin() string {
	if t.Kind != KindPlugin {
		return ""
	}
	return PluginName(t.Value)
}

// Classify reports the recipient format of a single trimmed token.
func Classify(token string) Kind {
	if _, err := age.ParseX25519Recipient(token); err == nil {
		return KindX25519
	}
	if pluginRecipient.MatchString(token) {
		return KindPlugin
	}
	if strings.HasPrefix(token, "ssh-") {
		pk, _, _, _, err := ssh.ParseAuthorizedKey([]byte(token))
		if err != nil {
			return KindUnknown
		}
		// age only understands these two SSH key types.
		switch pk.Type() {
		case ssh.KeyAlgoED25519, ssh.KeyAlgoRSA:
			return KindSSH
		}
	}
	return KindUnknown
}

// PluginName extracts "<name>" from an "age1<name>1…" recipient.
func PluginName(token string) string {
	m := pluginRecipient.FindStringSubmatch(token)
	if m == nil {
		return ""
	}
	return m[1]
}
