package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeLotID computes a deterministic lot_id using SHA256.
// Formula: SHA256(address|token|acquired_tx|acquired_at|seq)
// seq distinguishes several lots of the same token acquired in one transaction.
// Returns hex-encoded hash (64 characters).
func ComputeLotID(address, token, acquiredTx string, acquiredAt int64, seq int) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d", address, token, acquiredTx, acquiredAt, seq)
	return digest(data)
}

// ComputeEventID computes a deterministic event_id.
// Formula: SHA256(network|tx_hash|address|index)
func ComputeEventID(network, txHash, address string, index int) string {
	data := fmt.Sprintf("%s|%s|%s|%d", network, txHash, address, index)
	return digest(data)
}

// ComputeJobKey computes the deduplication key of a report job.
// Two requests with the same key describe the same work: the same period, the same
// fetched block range and the same unrealized valuation.
// Formula: SHA256(address|network|period_start|period_end|from_block|to_block|unrealized)
func ComputeJobKey(address, network string, periodStart, periodEnd, fromBlock, toBlock int64, unrealized string) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%d|%d|%s", address, network, periodStart, periodEnd, fromBlock, toBlock, unrealized)
	return digest(data)
}

func digest(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
