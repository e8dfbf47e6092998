// YubiAge
//
// YubiAge encrypts and decrypts files and folders by driving the external
// age command-line tool:
//   - Plain files become <name>.age, folders are archived to <name>.Dir.age
//   - Recipient key files may mix X25519, SSH and plugin recipients
//   - Hardware-token identities (age-plugin-yubikey) prompt in the console
//   - Decrypted files never overwrite existing ones
//
// The age binary is looked up on PATH unless [tool] path is set in the
// settings file or --age is given.

package main

import (
	"os"

	"YubiAge/internal/app"
	"YubiAge/internal/cli"
)

func main() {
	os.Exit(cli.Execute(app.Version))
}
