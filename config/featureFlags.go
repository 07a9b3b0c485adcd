package config

import (
	"os"
	"strings"
)

// DispatchDirectProcessing controls the in-process interval worker that runs
// dispatch batches without any external trigger.
//
// Set via env:
// - DISPATCH_DIRECT_PROCESSING=false to rely on Pub/Sub or cron triggers only.
//
// Default: run as a safety-net even when Pub/Sub is configured, so due
// messages are eventually attempted even if trigger delivery is misconfigured.
func DispatchDirectProcessing() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("DISPATCH_DIRECT_PROCESSING")))
	if val == "false" {
		return false
	}
	return true
}

// DispatchLockEnabled turns on a best-effort Redis lock around each dispatch
// batch so overlapping trigger deliveries don't double-send the same rows.
// Reliability must not depend on Redis; when the lock can't be obtained the
// batch is skipped, and when Redis is down batches run unguarded.
//
// Set via env:
// - DISPATCH_LOCK_ENABLED=true
//
// Default off: the baseline dispatch semantics carry no mutual exclusion.
func DispatchLockEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DISPATCH_LOCK_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
