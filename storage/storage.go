package storage

import (
	"github.com/defistate/synthamm/amm"
	"github.com/ethereum/go-ethereum/common"
)

// JournalEntry records one replayed operation and the state change it made.
// Failed operations carry Error and an empty Diff.
type JournalEntry struct {
	Seq       uint64           `json:"seq"`
	Op        string           `json:"op"`
	Timestamp uint64           `json:"timestamp"`
	PoolID    common.Hash      `json:"poolId"`
	Error     string           `json:"error,omitempty"`
	Diff      amm.SnapshotDiff `json:"diff"`
}

// Journal defines a sink for journal entries.
type Journal interface {
	Append(entries ...JournalEntry) error
}
