// devsigner manages a local signing key and produces signed actions
// for development and testing against a clearline engine.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"clearline/go-engine/internal/keystore"
	"clearline/go-engine/pkg/protocol"
)

const (
	exitOK            = 0
	exitInvalidInput  = 10
	exitKeystoreError = 20
	exitAuthFailed    = 30
)

const defaultPassphraseEnv = "CLEARLINE_PASSPHRASE"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "import":
		runImport(os.Args[2:])
	case "address":
		runAddress(os.Args[2:])
	case "sign":
		runSign(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitInvalidInput)
	}
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("keystore", "signer.key", "keystore file path")
	passEnv := fs.String("passphrase-env", defaultPassphraseEnv, "environment variable holding the passphrase")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	passphrase := readPassphrase(*passEnv)
	signer, mnemonic, err := keystore.Init(*path, passphrase)
	if err != nil {
		writeStderrln(err.Error(), keystoreExitCode(err))
	}
	// The mnemonic is printed exactly once; it is never persisted in
	// the clear.
	if err := printJSON(map[string]any{
		"created":  true,
		"address":  signer.Address().Value,
		"mnemonic": mnemonic,
	}); err != nil {
		writeStderrln(err.Error(), exitKeystoreError)
	}
	os.Exit(exitOK)
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	path := fs.String("keystore", "signer.key", "keystore file path")
	passEnv := fs.String("passphrase-env", defaultPassphraseEnv, "environment variable holding the passphrase")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	// The mnemonic arrives on stdin so it stays out of shell history
	// and process listings.
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	mnemonic := strings.TrimSpace(string(raw))
	if mnemonic == "" {
		writeStderrln("mnemonic is required on stdin", exitInvalidInput)
	}

	passphrase := readPassphrase(*passEnv)
	signer, err := keystore.Import(*path, passphrase, mnemonic)
	if err != nil {
		writeStderrln(err.Error(), keystoreExitCode(err))
	}
	if err := printJSON(map[string]any{
		"imported": true,
		"address":  signer.Address().Value,
	}); err != nil {
		writeStderrln(err.Error(), exitKeystoreError)
	}
	os.Exit(exitOK)
}

func runAddress(args []string) {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	path := fs.String("keystore", "signer.key", "keystore file path")
	passEnv := fs.String("passphrase-env", defaultPassphraseEnv, "environment variable holding the passphrase")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	signer, err := keystore.Load(*path, readPassphrase(*passEnv))
	if err != nil {
		writeStderrln(err.Error(), keystoreExitCode(err))
	}
	if err := printJSON(map[string]any{"address": signer.Address().Value}); err != nil {
		writeStderrln(err.Error(), exitKeystoreError)
	}
	os.Exit(exitOK)
}

func runSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	path := fs.String("keystore", "signer.key", "keystore file path")
	passEnv := fs.String("passphrase-env", defaultPassphraseEnv, "environment variable holding the passphrase")
	method := fs.String("method", string(protocol.SignatureMethodEcdsaEthereum), "signature method: ecdsa | ecdsa-ethereum")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	sigMethod := protocol.SignatureMethod(*method)
	if sigMethod != protocol.SignatureMethodEcdsa && sigMethod != protocol.SignatureMethodEcdsaEthereum {
		writeStderrln(fmt.Sprintf("unknown signature method %q", *method), exitInvalidInput)
	}

	act, err := decodeAction(os.Stdin)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	signer, err := keystore.Load(*path, readPassphrase(*passEnv))
	if err != nil {
		writeStderrln(err.Error(), keystoreExitCode(err))
	}
	signed, err := signer.SignAction(act, sigMethod)
	if err != nil {
		writeStderrln(err.Error(), exitKeystoreError)
	}
	if err := printJSON(signed); err != nil {
		writeStderrln(err.Error(), exitKeystoreError)
	}
	os.Exit(exitOK)
}

// decodeAction parses exactly one action from r, rejecting unknown
// fields and trailing tokens the same way the engine does.
func decodeAction(r io.Reader) (protocol.Action, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var act protocol.Action
	if err := dec.Decode(&act); err != nil {
		return protocol.Action{}, fmt.Errorf("malformed action: %v", err)
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return protocol.Action{}, errors.New("malformed action: unexpected trailing json tokens")
	} else if !errors.Is(err, io.EOF) {
		return protocol.Action{}, fmt.Errorf("malformed action: %v", err)
	}
	if act.Name == "" {
		return protocol.Action{}, errors.New("malformed action: action name is required")
	}
	return act, nil
}

func readPassphrase(envName string) string {
	passphrase := os.Getenv(envName)
	if passphrase == "" {
		writeStderrln(fmt.Sprintf("passphrase environment variable %s is empty", envName), exitInvalidInput)
	}
	return passphrase
}

func keystoreExitCode(err error) int {
	if errors.Is(err, keystore.ErrAuthFailed) {
		return exitAuthFailed
	}
	return exitKeystoreError
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Fprintln(os.Stdout, "devsigner <command> [flags]")
	fmt.Fprintln(os.Stdout, "commands:")
	fmt.Fprintln(os.Stdout, "  init    --keystore <path> [--passphrase-env NAME]")
	fmt.Fprintln(os.Stdout, "  import  --keystore <path> [--passphrase-env NAME]   (mnemonic on stdin)")
	fmt.Fprintln(os.Stdout, "  address --keystore <path> [--passphrase-env NAME]")
	fmt.Fprintln(os.Stdout, "  sign    --keystore <path> [--passphrase-env NAME] [--method ecdsa|ecdsa-ethereum]   (action json on stdin)")
}

func writeStderrln(line string, exitCode int) {
	fmt.Fprintln(os.Stderr, line)
	os.Exit(exitCode)
}
