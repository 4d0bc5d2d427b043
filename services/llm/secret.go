// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// secretKey holds an API key encrypted in memory.
//
// The plaintext only exists while a transport is being built.
type secretKey struct {
	enclave *memguard.Enclave
}

func newSecretKey(key string) *secretKey {
	if key == "" {
		return nil
	}
	// NewEnclave wipes the slice it is given.
	return &secretKey{enclave: memguard.NewEnclave([]byte(key))}
}

// reveal decrypts the key. The returned string is a copy.
func (s *secretKey) reveal() (string, error) {
	if s == nil || s.enclave == nil {
		return "", fmt.Errorf("no key stored")
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening key enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}
