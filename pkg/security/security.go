/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package security validates component libraries before they are mapped.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrChecksumMismatch is returned when a library's digest differs from the expected one.
var ErrChecksumMismatch = errors.New("library checksum mismatch")

// Validator checks a library file before it is loaded.
type Validator interface {
	ValidateSignature(libraryPath string) error
}

// Checksum validates the sha256 digest of a library, given as hex.
type Checksum string

// ValidateSignature implements Validator. An empty checksum accepts any file.
func (c Checksum) ValidateSignature(libraryPath string) error {
	want := strings.ToLower(strings.TrimSpace(string(c)))
	if want == "" {
		return nil
	}
	got, err := FileSHA256(libraryPath)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s has %s, want %s", ErrChecksumMismatch, libraryPath, got, want)
	}
	return nil
}

// FileSHA256 returns the hex sha256 digest of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
