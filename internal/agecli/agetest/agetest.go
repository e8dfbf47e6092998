// Package agetest provides a stand-in for the age binary backed by
// filippo.io/age, so tests can drive real encryptions without age on PATH.
//
// The stand-in is the test binary itself. Call Main first thing in TestMain;
// when the process was started through Command it behaves like age and
// exits, otherwise it returns and the tests run normally.
package agetest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// Environment switches understood by the stand-in.
const (
	// EnvActive makes Main act as age.
	EnvActive = "YUBIAGE_AGETEST"

	// EnvFail names an input base name that fails with a tool error.
	EnvFail = "YUBIAGE_AGETEST_FAIL"

	// EnvSleep delays every invocation by a time.ParseDuration value.
	EnvSleep = "YUBIAGE_AGETEST_SLEEP"

	// EnvSkipOutput makes successful runs exit 0 without writing output.
	EnvSkipOutput = "YUBIAGE_AGETEST_SKIP_OUTPUT"
)

// FailMessage is written to stderr for inputs named by EnvFail.
const FailMessage = "age: error: simulated failure"

// Main runs the stand-in if EnvActive is set, then exits.
func Main() {
	if os.Getenv(EnvActive) != "1" {
		return
	}
	os.Exit(run(os.Args[1:], os.Stderr))
}

// Command returns the binary and extra environment that launch the stand-in.
// Additional KEY=VALUE pairs are appended to the environment.
func Command(extra ...string) (binary string, env []string) {
	return os.Args[0], append([]string{EnvActive + "=1"}, extra...)
}

// Keys holds a generated X25519 key pair written to disk.
type Keys struct {
	Recipient     string
	RecipientFile string
	IdentityFile  string
}

// GenerateKeys writes a fresh identity and its recipient into dir, using
// age-keygen's file layout.
func GenerateKeys(t testing.TB, dir, name string) Keys {
	t.Helper()

	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	recipient := id.Recipient().String()

	k := Keys{
		Recipient:     recipient,
		RecipientFile: filepath.Join(dir, name+".pub"),
		IdentityFile:  filepath.Join(dir, name+".key"),
	}
	pub := fmt.Sprintf("# public key for %s\n%s\n", name, recipient)
	priv := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().Format(time.RFC3339), recipient, id.String())

	if err := os.WriteFile(k.RecipientFile, []byte(pub), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(k.IdentityFile, []byte(priv), 0600); err != nil {
		t.Fatal(err)
	}
	return k
}

type invocation struct {
	decrypt    bool
	armor      bool
	output     string
	recipients []string
	identities []string
	input      string
}

func parseArgs(args []string) (*invocation, error) {
	inv := &invocation{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("flag %s needs a value", a)
			}
			i++
			return args[i], nil
		}

		var err error
		var v string
		switch a {
		case "-d", "--decrypt":
			inv.decrypt = true
		case "-a", "--armor":
			inv.armor = true
		case "-o", "--output":
			v, err = value()
			inv.output = v
		case "-R", "--recipients-file":
			v, err = value()
			inv.recipients = append(inv.recipients, v)
		case "-i", "--identity":
			v, err = value()
			inv.identities = append(inv.identities, v)
		default:
			if strings.HasPrefix(a, "-") {
				return nil, fmt.Errorf("unknown flag %s", a)
			}
			if inv.input != "" {
				return nil, fmt.Errorf("too many arguments")
			}
			inv.input = a
		}
		if err != nil {
			return nil, err
		}
	}
	if inv.input == "" || inv.output == "" {
		return nil, fmt.Errorf("input and -o are required")
	}
	return inv, nil
}

func run(args []string, stderr io.Writer) int {
	if d, err := time.ParseDuration(os.Getenv(EnvSleep)); err == nil {
		time.Sleep(d)
	}

	inv, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "age: error: %v\n", err)
		return 1
	}
	if fail := os.Getenv(EnvFail); fail != "" && filepath.Base(inv.input) == fail {
		fmt.Fprintln(stderr, FailMessage)
		return 1
	}
	if os.Getenv(EnvSkipOutput) == "1" {
		return 0
	}

	if inv.decrypt {
		err = decrypt(inv)
	} else {
		err = encrypt(inv)
	}
	if err != nil {
		os.Remove(inv.output)
		fmt.Fprintf(stderr, "age: error: %v\n", err)
		return 1
	}
	return 0
}

func encrypt(inv *invocation) error {
	var recipients []age.Recipient
	for _, path := range inv.recipients {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open recipient file: %v", err)
		}
		rs, err := age.ParseRecipients(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse recipient file %q: %v", path, err)
		}
		recipients = append(recipients, rs...)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("missing recipients")
	}

	in, err := os.Open(inv.input)
	if err != nil {
		return fmt.Errorf("failed to open input file %q: %v", inv.input, err)
	}
	defer in.Close()

	out, err := os.Create(inv.output)
	if err != nil {
		return fmt.Errorf("failed to open output file %q: %v", inv.output, err)
	}
	defer out.Close()

	var dst io.WriteCloser = nopCloser{out}
	if inv.armor {
		dst = armor.NewWriter(out)
	}
	w, err := age.Encrypt(dst, recipients...)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return dst.Close()
}

func decrypt(inv *invocation) error {
	var identities []age.Identity
	for _, path := range inv.identities {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open identity file: %v", err)
		}
		ids, err := age.ParseIdentities(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to read %q: %v", path, err)
		}
		identities = append(identities, ids...)
	}
	if len(identities) == 0 {
		return fmt.Errorf("missing identity")
	}

	in, err := os.Open(inv.input)
	if err != nil {
		return fmt.Errorf("failed to open input file %q: %v", inv.input, err)
	}
	defer in.Close()

	br := bufio.NewReader(in)
	var src io.Reader = br
	if start, _ := br.Peek(len(armor.Header)); bytes.Equal(start, []byte(armor.Header)) {
		src = armor.NewReader(br)
	}

	r, err := age.Decrypt(src, identities...)
	if err != nil {
		return err
	}

	out, err := os.Create(inv.output)
	if err != nil {
		return fmt.Errorf("failed to open output file %q: %v", inv.output, err)
	}
	defer out.Close()

	_, err = io.Copy(out, r)
	return err
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
