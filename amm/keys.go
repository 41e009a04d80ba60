package amm

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
)

// Mint identifies a token.
type Mint string

// Account identifies a token holder in the ledger.
type Account string

var (
	poolKeyPrefix     = []byte("synthamm/pool")
	positionKeyPrefix = []byte("synthamm/position")
	vaultKeyPrefix    = []byte("synthamm/vault")
)

func makeKey(prefix []byte, parts ...[]byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	var length [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(length[:], uint32(len(p)))
		h.Write(length[:])
		h.Write(p)
	}
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// PoolID derives the identifier of the pool trading synthetic against quote
// at tickSpacing.
func PoolID(synthetic, quote Mint, tickSpacing uint16) common.Hash {
	var spacing [2]byte
	binary.BigEndian.PutUint16(spacing[:], tickSpacing)
	return makeKey(poolKeyPrefix, []byte(synthetic), []byte(quote), spacing[:])
}

// PositionID derives the identifier of the seq-th position opened in pool.
func PositionID(pool common.Hash, owner Account, tickLower, tickUpper int32, seq uint64) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(tickLower))
	binary.BigEndian.PutUint32(buf[4:8], uint32(tickUpper))
	binary.BigEndian.PutUint64(buf[8:16], seq)
	return makeKey(positionKeyPrefix, pool[:], []byte(owner), buf[:])
}

// VaultAccount is the ledger account holding pool's balance of mint.
func VaultAccount(pool common.Hash, mint Mint) Account {
	return Account("vault:" + makeKey(vaultKeyPrefix, pool[:], []byte(mint)).Hex())
}
