// Package manifest keeps a JSON ledger of playbook runs next to the logs the
// log_results callback writes, so a log directory records which playbook
// (by content hash) produced which result.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/eniac111/oct/internal/types"
)

// FileName is the ledger file inside a log directory.
const FileName = "run-manifest.json"

// Manifest maps a run key to its result.
type Manifest map[string]types.RunResult

var mu sync.Mutex

// Slugify lowercases s and joins its runs of [a-z0-9_] with single dashes.
func Slugify(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	return strings.Join(words, "-")
}

// Key names a run as <playbook-slug>-<UTC start time to the nanosecond>.
func Key(res types.RunResult) string {
	base := strings.TrimSuffix(filepath.Base(res.Playbook), filepath.Ext(res.Playbook))
	return fmt.Sprintf("%s-%s", Slugify(base), res.StartedAt.UTC().Format("20060102T150405.000000000Z"))
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Load reads the ledger in dir. A missing ledger is an empty one.
func Load(dir string) (Manifest, error) {
	m := Manifest{}
	f, err := os.Open(filepath.Join(dir, FileName))
	if os.IsNotExist(err) {
		return m, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&m); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// Record adds res to the ledger in dir and returns its key.
func Record(dir string, res types.RunResult) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	m, err := Load(dir)
	if err != nil {
		return "", err
	}
	key := Key(res)
	m[key] = res

	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, FileName)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return key, nil
}

// Since returns a result stamped with start and the time elapsed since it.
func Since(res types.RunResult, start time.Time) types.RunResult {
	res.StartedAt = start
	res.Duration = time.Since(start)
	return res
}
