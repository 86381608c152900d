// Package history keeps an append-only JSON lines log of benchmark results.
//
// Each line is one Record. Writers take an exclusive file lock so several processes can
// share one history file; readers take a shared lock.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"github.com/torosent/concbench/internal/metrics"
)

var ErrNotFound = errors.New("history record not found")

// Record is one benchmark invocation: one run, or the two runs of a comparison.
type Record struct {
	ID         string                       `json:"id"`
	RecordedAt time.Time                    `json:"recordedAt"`
	Runs       []metrics.RunResult          `json:"runs"`
	Comparison *metrics.FormattedComparison `json:"comparison,omitempty"`
}

// Summary is the indexed view of a record, read without decoding the whole line.
type Summary struct {
	ID          string    `json:"id" yaml:"id"`
	RecordedAt  time.Time `json:"recordedAt" yaml:"recordedAt"`
	ThreadTypes []string  `json:"threadTypes" yaml:"threadTypes"`
	TotalTimeMs []int64   `json:"totalTimeMs" yaml:"totalTimeMs"`
	TimeRatio   string    `json:"timeRatio,omitempty" yaml:"timeRatio,omitempty"`
}

// Store is safe for concurrent use. mu serializes goroutines of this process; lock
// serializes processes.
type Store struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// Open prepares a store at path, creating its directory when needed. The file itself is
// created on first Append.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	return &Store{path: path, lock: flock.New(path + ".lock")}, nil
}

// Path returns the history file location.
func (s *Store) Path() string { return s.path }

// Append writes rec as one line and returns it with ID and RecordedAt filled in.
func (s *Store) Append(rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode history record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return Record{}, fmt.Errorf("lock history: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return Record{}, fmt.Errorf("open history: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return Record{}, fmt.Errorf("write history: %w", err)
	}
	if err := f.Close(); err != nil {
		return Record{}, fmt.Errorf("close history: %w", err)
	}
	return rec, nil
}

// List returns summaries of all records, oldest first. Malformed lines are skipped.
// A missing file is an empty history.
func (s *Store) List() ([]Summary, error) {
	var out []Summary
	err := s.scan(func(line []byte) bool {
		if !gjson.ValidBytes(line) {
			return true
		}
		out = append(out, summarize(line))
		return true
	})
	return out, err
}

// Get decodes the record with id.
func (s *Store) Get(id string) (Record, error) {
	var found []byte
	err := s.scan(func(line []byte) bool {
		if gjson.GetBytes(line, "id").String() == id {
			found = append([]byte(nil), line...)
			return false
		}
		return true
	})
	if err != nil {
		return Record{}, err
	}
	if found == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec Record
	if err := json.Unmarshal(found, &rec); err != nil {
		return Record{}, fmt.Errorf("decode history record %s: %w", id, err)
	}
	return rec, nil
}

// Previous returns the most recent run of threadType recorded before excludeID.
func (s *Store) Previous(threadType, excludeID string) (metrics.RunResult, bool, error) {
	var last []byte
	query := fmt.Sprintf(`runs.#(threadType==%q)`, threadType)
	err := s.scan(func(line []byte) bool {
		if gjson.GetBytes(line, "id").String() == excludeID {
			return true
		}
		if r := gjson.GetBytes(line, query); r.Exists() {
			last = []byte(r.Raw)
		}
		return true
	})
	if err != nil || last == nil {
		return metrics.RunResult{}, false, err
	}
	var res metrics.RunResult
	if err := json.Unmarshal(last, &res); err != nil {
		return metrics.RunResult{}, false, fmt.Errorf("decode history run: %w", err)
	}
	return res, true, nil
}

// scan calls fn for every non-empty line under a shared lock until fn returns false.
func (s *Store) scan(fn func(line []byte) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.RLock(); err != nil {
		return fmt.Errorf("lock history: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !fn(line) {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	return nil
}

func summarize(line []byte) Summary {
	fields := gjson.GetManyBytes(line, "id", "recordedAt", "runs.#.threadType", "runs.#.totalTimeMs", "comparison.timeRatio")
	sum := Summary{
		ID:         fields[0].String(),
		RecordedAt: fields[1].Time(),
		TimeRatio:  fields[4].String(),
	}
	for _, t := range fields[2].Array() {
		sum.ThreadTypes = append(sum.ThreadTypes, t.String())
	}
	for _, ms := range fields[3].Array() {
		sum.TotalTimeMs = append(sum.TotalTimeMs, ms.Int())
	}
	return sum
}
