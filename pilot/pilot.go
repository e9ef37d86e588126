// Package pilot answers whether an email address is on the monitored-removal
// pilot list without the service ever holding the list's plaintext addresses.
package pilot

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Checker reports pilot-list membership for an email address. Implementations
// must be idempotent: repeated calls for the same email return the same
// answer, and callers memoize the result so a given subscriber is checked at
// most once.
type Checker interface {
	IsEmailOnPilotList(ctx context.Context, email string) (bool, error)
}

// HashEmail returns the lowercase hex SHA-1 of a normalized email address,
// the form pilot list entries are distributed in.
func HashEmail(email string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// HashSetChecker checks membership against an in-memory set of email hashes.
type HashSetChecker struct {
	hashes map[string]struct{}
}

// NewHashSetChecker builds a checker from precomputed hashes.
func NewHashSetChecker(hashes []string) *HashSetChecker {
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		set[h] = struct{}{}
	}
	return &HashSetChecker{hashes: set}
}

// LoadHashFile builds a checker from a file with one hex SHA-1 email hash per
// line. Blank lines and lines starting with '#' are skipped.
func LoadHashFile(path string) (*HashSetChecker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pilot list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var hashes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hashes = append(hashes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pilot list: %w", err)
	}
	return NewHashSetChecker(hashes), nil
}

// IsEmailOnPilotList implements Checker.
func (c *HashSetChecker) IsEmailOnPilotList(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := c.hashes[HashEmail(email)]
	return ok, nil
}

// Len returns the number of list entries.
func (c *HashSetChecker) Len() int {
	return len(c.hashes)
}

// Static is a fixed-answer checker for tests. Calls counts invocations.
type Static struct {
	Member bool
	Err    error
	Calls  int
}

// IsEmailOnPilotList implements Checker.
func (s *Static) IsEmailOnPilotList(ctx context.Context, email string) (bool, error) {
	s.Calls++
	if s.Err != nil {
		return false, s.Err
	}
	return s.Member, nil
}
