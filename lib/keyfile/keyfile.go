// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyfile writes and reads passphrase-protected copies of the
// appliance's message encryption key.
//
// The backend exports its key as base64 text. Writing that text to
// disk in the clear would let anyone holding the file read all radio
// traffic, so `lorachat crypto export` seals it with an age scrypt
// recipient before writing, and `crypto import` opens it again. Files
// are ASCII-armored so they survive copy and paste through chat and
// email.
package keyfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// DefaultWorkFactor is the scrypt work factor (log2 N) for new files.
const DefaultWorkFactor = 18

// ErrWrongPassphrase is returned by [Open] when the passphrase does
// not decrypt the file.
var ErrWrongPassphrase = errors.New("keyfile: wrong passphrase")

// Bundle is the sealed content of a key file.
type Bundle struct {
	// Key is the base64 key exactly as the backend exported it.
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	ExportedAt  time.Time `json:"exported_at"`
	// Source is the backend URL the key was exported from.
	Source string `json:"source,omitempty"`
}

// Seal encrypts bundle under passphrase and writes the armored result
// to w.
func Seal(w io.Writer, bundle Bundle, passphrase string, workFactor int) error {
	if passphrase == "" {
		return errors.New("keyfile: empty passphrase")
	}
	if bundle.Key == "" {
		return errors.New("keyfile: bundle has no key")
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("keyfile: %w", err)
	}
	recipient.SetWorkFactor(workFactor)

	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("keyfile: encoding bundle: %w", err)
	}

	armored := armor.NewWriter(w)
	encrypted, err := age.Encrypt(armored, recipient)
	if err != nil {
		return fmt.Errorf("keyfile: creating encryptor: %w", err)
	}
	if _, err := encrypted.Write(plaintext); err != nil {
		return fmt.Errorf("keyfile: writing: %w", err)
	}
	if err := encrypted.Close(); err != nil {
		return fmt.Errorf("keyfile: finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return fmt.Errorf("keyfile: finalizing armor: %w", err)
	}
	return nil
}

// Open reads an armored key file from r and decrypts it with
// passphrase.
func Open(r io.Reader, passphrase string) (*Bundle, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("keyfile: %w", err)
	}

	decrypted, err := age.Decrypt(armor.NewReader(r), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("keyfile: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(decrypted)
	if err != nil {
		return nil, fmt.Errorf("keyfile: reading: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil, fmt.Errorf("keyfile: decoding bundle: %w", err)
	}
	if bundle.Key == "" {
		return nil, errors.New("keyfile: file contains no key")
	}
	return &bundle, nil
}
