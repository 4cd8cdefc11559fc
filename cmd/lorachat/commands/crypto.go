// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lorachat/cmd/lorachat/cli"
	"github.com/bureau-foundation/lorachat/lib/keyfile"
)

func cryptoCommand(streams IO) *cli.Command {
	return &cli.Command{
		Name:    "crypto",
		Summary: "Manage the message encryption key",
		Subcommands: []*cli.Command{
			cryptoInitCommand(streams),
			cryptoExportCommand(streams),
			cryptoImportCommand(streams),
			cryptoFingerprintCommand(streams),
		},
	}
}

type cryptoInitParams struct {
	connectionParams
	cli.JSONOutput
	Generate bool `json:"-" flag:"generate" desc:"let the backend generate the password instead of prompting"`
}

func cryptoInitCommand(streams IO) *cli.Command {
	var params cryptoInitParams
	return &cli.Command{
		Name:    "init",
		Summary: "Initialize encryption from a password",
		Description: `Derive the message key from a password. The password is read from
the terminal without echo, or from the first line of stdin when stdin
is not a terminal. With --generate (or an empty password) the backend
chooses a password and it is printed once.`,
		Examples: []cli.Example{
			{Description: "Prompt for the password", Command: "lorachat crypto init"},
			{Description: "Read the password from a file", Command: "lorachat crypto init < password.txt"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("init", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "crypto/init")
			if err != nil {
				return err
			}
			var password string
			if !params.Generate {
				password, err = cli.ReadSecret(streams.Stdin, streams.Stderr, "Encryption password (empty to generate): ")
				if err != nil {
					return err
				}
			}

			result, err := env.client.InitCrypto(ctx, password)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Stdout, result); done {
				return err
			}
			fmt.Fprintln(streams.Stdout, result.Message)
			fmt.Fprintf(streams.Stdout, "fingerprint %s\n", result.KeyFingerprint)
			if result.GeneratedPassword != nil {
				fmt.Fprintf(streams.Stdout, "generated password %s\n", *result.GeneratedPassword)
				fmt.Fprintln(streams.Stderr, "The generated password is not shown again. Both appliances need it.")
			}
			return nil
		},
	}
}

type cryptoExportParams struct {
	connectionParams
	cli.JSONOutput
	Out        string `json:"-" flag:"out,o" desc:"write a passphrase-protected key file instead of printing the key"`
	Force      bool   `json:"-" flag:"force" desc:"overwrite an existing --out file"`
	WorkFactor int    `json:"-" flag:"work-factor" desc:"scrypt work factor (log2 N) for the key file" default:"18"`
}

func cryptoExportCommand(streams IO) *cli.Command {
	var params cryptoExportParams
	return &cli.Command{
		Name:    "export",
		Summary: "Export the key for the other appliance",
		Description: `Export the current message key. Without --out the base64 key is
printed. With --out it is sealed in an age-encrypted file under a
passphrase read like the init password; 'crypto import --in' reads
it back.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("export", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "crypto/export")
			if err != nil {
				return err
			}
			exported, err := env.client.ExportKey(ctx)
			if err != nil {
				return err
			}

			if params.Out == "" {
				if done, err := params.EmitJSON(streams.Stdout, exported); done {
					return err
				}
				fmt.Fprintf(streams.Stdout, "key %s\nfingerprint %s\n", exported.Key, exported.Fingerprint)
				return nil
			}

			if params.WorkFactor < 1 || params.WorkFactor > 30 {
				return fmt.Errorf("--work-factor must be between 1 and 30, got %d", params.WorkFactor)
			}
			if !params.Force {
				if _, err := os.Stat(params.Out); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", params.Out)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			passphrase, err := readNewPassphrase(streams)
			if err != nil {
				return err
			}
			var sealed bytes.Buffer
			bundle := keyfile.Bundle{
				Key:         exported.Key,
				Fingerprint: exported.Fingerprint,
				ExportedAt:  time.Now().UTC(),
				Source:      env.client.BaseURL(),
			}
			if err := keyfile.Seal(&sealed, bundle, passphrase, params.WorkFactor); err != nil {
				return err
			}
			if err := os.WriteFile(params.Out, sealed.Bytes(), 0o600); err != nil {
				return fmt.Errorf("writing key file: %w", err)
			}
			env.logger.Info("key exported", "path", params.Out, "fingerprint", exported.Fingerprint)
			if done, err := params.EmitJSON(streams.Stdout, map[string]string{"path": params.Out, "fingerprint": exported.Fingerprint}); done {
				return err
			}
			fmt.Fprintf(streams.Stdout, "wrote %s (fingerprint %s)\n", params.Out, exported.Fingerprint)
			return nil
		},
	}
}

// readNewPassphrase reads a key file passphrase, asking twice when
// stdin is a terminal.
func readNewPassphrase(streams IO) (string, error) {
	passphrase, err := cli.ReadSecret(streams.Stdin, streams.Stderr, "Key file passphrase: ")
	if err != nil {
		return "", err
	}
	if cli.IsTerminal(streams.Stdin) {
		confirmation, err := cli.ReadSecret(streams.Stdin, streams.Stderr, "Confirm passphrase: ")
		if err != nil {
			return "", err
		}
		if confirmation != passphrase {
			return "", errors.New("passphrases do not match")
		}
	}
	return passphrase, nil
}

type cryptoImportParams struct {
	connectionParams
	cli.JSONOutput
	In string `json:"-" flag:"in,i" desc:"read the key from a file written by 'crypto export --out'"`
}

func cryptoImportCommand(streams IO) *cli.Command {
	var params cryptoImportParams
	return &cli.Command{
		Name:    "import",
		Summary: "Import a key exported from the other appliance",
		Usage:   "lorachat crypto import (--in FILE | <base64-key>)",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("import", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			var key string
			switch {
			case params.In != "" && len(args) > 0:
				return errors.New("pass either --in or a key argument, not both")
			case params.In != "":
				data, err := os.ReadFile(params.In)
				if err != nil {
					return fmt.Errorf("reading key file: %w", err)
				}
				passphrase, err := cli.ReadSecret(streams.Stdin, streams.Stderr, "Key file passphrase: ")
				if err != nil {
					return err
				}
				bundle, err := keyfile.Open(bytes.NewReader(data), passphrase)
				if err != nil {
					return err
				}
				key = bundle.Key
			case len(args) == 1:
				key = args[0]
			default:
				return errors.New("a key is required: pass --in FILE or the base64 key")
			}

			env, err := params.open(streams.Stderr, "crypto/import")
			if err != nil {
				return err
			}
			result, err := env.client.ImportKey(ctx, key)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Stdout, result); done {
				return err
			}
			fmt.Fprintln(streams.Stdout, result.Message)
			fmt.Fprintf(streams.Stdout, "fingerprint %s\n", result.Fingerprint)
			return nil
		},
	}
}

func cryptoFingerprintCommand(streams IO) *cli.Command {
	var params jsonParams
	return &cli.Command{
		Name:    "fingerprint",
		Summary: "Show the fingerprint of the current key",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("fingerprint", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "crypto/fingerprint")
			if err != nil {
				return err
			}
			fingerprint, err := env.client.Fingerprint(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Stdout, map[string]string{"fingerprint": fingerprint}); done {
				return err
			}
			_, err = fmt.Fprintln(streams.Stdout, fingerprint)
			return err
		},
	}
}
