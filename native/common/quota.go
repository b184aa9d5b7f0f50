package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaNotionalExceeded = errors.New("quota notional cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an account.
type QuotaNow struct {
	ReqCount     uint32
	NotionalUsed uint64
	EpochID      uint64
}

// Quota defines the per-account throughput limits enforced for engine actions
// within one epoch.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxNotionalPerEpoch uint64
	EpochSeconds        uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerEpoch > 0 || q.MaxNotionalPerEpoch > 0
}

// Epoch maps a unix timestamp onto the quota epoch counter.
func (q Quota) Epoch(unix int64) uint64 {
	if q.EpochSeconds == 0 || unix <= 0 {
		return 0
	}
	return uint64(unix) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and notional usage fit
// within the configured quota. The returned QuotaNow reflects the updated
// counters when the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addNotional uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addNotional > 0 {
		if next.NotionalUsed > math.MaxUint64-addNotional {
			return prev, ErrQuotaCounterOverflow
		}
		next.NotionalUsed += addNotional
	}
	if q.MaxNotionalPerEpoch > 0 && next.NotionalUsed > q.MaxNotionalPerEpoch {
		return prev, ErrQuotaNotionalExceeded
	}

	return next, nil
}
