// Package agecli builds command lines for the age tool and runs it as a child
// process, one invocation per file.
package agecli

// EncryptArgs returns the arguments for an ASCII-armored encryption of input to
// output using every recipient listed in recipientsFile.
//
//	age -a -o <output> -R <recipientsFile> <input>
func EncryptArgs(output, recipientsFile, input string) []string {
	return []string{"-a", "-o", output, "-R", recipientsFile, input}
}

// DecryptArgs returns the arguments for decrypting input to output. Each
// identity file gets its own -i flag, in order.
//
//	age -d -o <output> -i <id1> [-i <id2> ...] <input>
func DecryptArgs(output string, identities []string, input string) []string {
	args := make([]string, 0, 4+2*len(identities))
	args = append(args, "-d", "-o", output)
	for _, id := range identities {
		args = append(args, "-i", id)
	}
	return append(args, input)
}
