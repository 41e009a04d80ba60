package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/defistate/synthamm/amm"
	"github.com/ethereum/go-ethereum/common"
)

const maxJournalLine = 16 << 20

// JsonlJournal appends journal entries to a JSONL file.
type JsonlJournal struct {
	path string
	mu   sync.Mutex
}

func NewJsonlJournal(path string) *JsonlJournal {
	return &JsonlJournal{path: path}
}

// Append writes entries as JSON lines.
func (j *JsonlJournal) Append(entries ...JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for i := range entries {
		line, err := json.Marshal(&entries[i])
		if err != nil {
			return fmt.Errorf("marshal journal entry %d: %w", entries[i].Seq, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write journal entry: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

// ReadJournal returns every entry in the JSONL file at path, in order.
func ReadJournal(path string) ([]JournalEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}

// ErrUnknownPool is returned when a journal entry patches a pool that has
// no prior snapshot and is not created by the entry itself.
var ErrUnknownPool = errors.New("journal entry for unknown pool")

// Rebuild replays the diffs of successful entries on top of base and
// returns the resulting snapshot of every pool.
func Rebuild(base map[common.Hash]*amm.Snapshot, entries []JournalEntry) (map[common.Hash]*amm.Snapshot, error) {
	state := make(map[common.Hash]*amm.Snapshot, len(base))
	for id, s := range base {
		state[id] = s.Clone()
	}

	for _, entry := range entries {
		if entry.Error != "" || entry.Diff.IsEmpty() {
			continue
		}
		prev, ok := state[entry.PoolID]
		if !ok {
			if entry.Diff.Pool == nil {
				return nil, fmt.Errorf("%w: entry %d, pool %s", ErrUnknownPool, entry.Seq, entry.PoolID.Hex())
			}
			prev = &amm.Snapshot{Pool: amm.Pool{ID: entry.PoolID}}
		}
		next, err := amm.Patcher(prev, entry.Diff)
		if err != nil {
			return nil, fmt.Errorf("patch entry %d: %w", entry.Seq, err)
		}
		state[entry.PoolID] = next
	}
	return state, nil
}
