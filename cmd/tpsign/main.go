package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/danmuck/txprocessor/internal/signing"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "tpsign: %v\n", err)
		os.Exit(1)
	}
}

const usage = `Usage:
  tpsign keygen [--out key.priv]
  tpsign pubkey --key key.priv
  tpsign sign   --key key.priv [--in file]
  tpsign verify --pub <hex> --sig <hex> [--in file]

--in defaults to stdin.
`

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "keygen":
		return keygen(rest, stdout, stderr)
	case "pubkey":
		return pubkey(rest, stdout, stderr)
	case "sign":
		return sign(rest, stdin, stdout, stderr)
	case "verify":
		return verify(rest, stdin, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newFlags(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("tpsign "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func keygen(args []string, stdout, stderr io.Writer) error {
	fs := newFlags("keygen", stderr)
	out := fs.String("out", "", "write the private key to this file instead of stdout")
	force := fs.Bool("force", false, "overwrite an existing key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := signing.GenerateKey()
	if err != nil {
		return err
	}
	if *out == "" {
		fmt.Fprintf(stdout, "private: %s\npublic: %s\n", key.Hex(), key.PublicKey().Hex())
		return nil
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if *force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(*out, flags, 0o600)
	if err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	if _, err := fmt.Fprintln(f, key.Hex()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write key: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	fmt.Fprintln(stdout, key.PublicKey().Hex())
	return nil
}

func pubkey(args []string, stdout, stderr io.Writer) error {
	fs := newFlags("pubkey", stderr)
	keyPath := fs.String("key", "", "private key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, key.PublicKey().Hex())
	return nil
}

func sign(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlags("sign", stderr)
	keyPath := fs.String("key", "", "private key file")
	in := fs.String("in", "", "message file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return err
	}
	msg, err := readInput(*in, stdin)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, key.Sign(msg))
	return nil
}

func verify(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlags("verify", stderr)
	pub := fs.String("pub", "", "signer public key (hex)")
	sig := fs.String("sig", "", "signature (hex)")
	in := fs.String("in", "", "message file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pub == "" || *sig == "" {
		return fmt.Errorf("--pub and --sig are required")
	}
	msg, err := readInput(*in, stdin)
	if err != nil {
		return err
	}
	if err := signing.VerifyHex(*pub, msg, *sig); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "OK")
	return nil
}

func loadKey(path string) (*signing.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--key is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	return signing.ParsePrivateKeyHex(string(raw))
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}
