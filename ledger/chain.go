// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// ChainEntry is one line of the decision chain file.
type ChainEntry struct {
	// Hash is blake3(PrevHash || Payload), hex encoded.
	Hash string

	// PrevHash is the previous entry's Hash; empty for the first
	// entry.
	PrevHash string

	// Payload is the canonical JSON the hash covers, stored verbatim
	// so verification replays exactly the bytes that were hashed.
	Payload string
}

// Chain is the append-only hash-chained decision file. One entry per
// line: "hash,prev_hash,canonical_json". Appends serialize on an
// internal mutex; the file is opened per append so an external
// verifier can read it at any time.
type Chain struct {
	mu       sync.Mutex
	path     string
	lastHash string
}

// OpenChain opens (or prepares to create) the chain file at path and
// caches the tip hash. A missing file is an empty, valid chain.
func OpenChain(path string) (*Chain, error) {
	chain := &Chain{path: path}
	entries, err := readChainFile(path)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		chain.lastHash = entries[len(entries)-1].Hash
	}
	return chain, nil
}

// Path returns the chain file location.
func (c *Chain) Path() string { return c.path }

// RecordDecision appends a tamper-evident entry for payload and
// returns the new entry's hash. The payload is serialized to
// canonical JSON (Go's encoding/json writes map keys in sorted order,
// which is the canonical form warden relies on), so payloads must be
// built from maps and JSON-safe scalar types.
func (c *Chain) RecordDecision(payload map[string]any) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ledger: canonicalizing decision: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hash := chainHash(c.lastHash, string(canonical))
	line := fmt.Sprintf("%s,%s,%s\n", hash, c.lastHash, canonical)

	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return "", fmt.Errorf("ledger: opening chain file: %w", err)
	}
	defer file.Close()
	if _, err := file.WriteString(line); err != nil {
		return "", fmt.Errorf("ledger: appending chain entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("ledger: syncing chain file: %w", err)
	}

	c.lastHash = hash
	return hash, nil
}

// Verify replays every entry in file order, recomputing each hash
// from the stored previous hash and payload. It returns (true, -1)
// for an intact (or empty) chain, or (false, i) where i is the index
// of the first entry whose stored hash, recomputed hash, or prev-hash
// linkage does not hold. Entries before i still verify.
func (c *Chain) Verify() (bool, int, error) {
	entries, err := readChainFile(c.path)
	if err != nil {
		return false, 0, err
	}
	return verifyEntries(entries)
}

// Entries returns the parsed chain file contents.
func (c *Chain) Entries() ([]ChainEntry, error) {
	return readChainFile(c.path)
}

func verifyEntries(entries []ChainEntry) (bool, int, error) {
	prev := ""
	for i, entry := range entries {
		if entry.PrevHash != prev {
			return false, i, nil
		}
		if chainHash(entry.PrevHash, entry.Payload) != entry.Hash {
			return false, i, nil
		}
		prev = entry.Hash
	}
	return true, -1, nil
}

func chainHash(prevHash, payload string) string {
	sum := blake3.Sum256([]byte(prevHash + payload))
	return hex.EncodeToString(sum[:])
}

func readChainFile(path string) ([]ChainEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: opening chain file: %w", err)
	}
	defer file.Close()

	var entries []ChainEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("ledger: malformed chain line %d", len(entries))
		}
		entries = append(entries, ChainEntry{
			Hash:     parts[0],
			PrevHash: parts[1],
			Payload:  parts[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: reading chain file: %w", err)
	}
	return entries, nil
}
