// Package heavy implements the heavyweight side of tierlock: the monitor
// records that inflated header words point at, and the blocking slow path
// the fast tiers escalate to.
//
// [Runtime] implements monitor.SlowPath. An escalated enter loops over the
// header word: it revokes a stale bias, retries the stack lock while the
// word is unlocked, detects its own recursion, inflates the word under
// foreign stack locks, and finally blocks on the [Monitor] with a FIFO
// hand-off. An escalated exit decrements recursion or clears the owner and
// wakes the next queued thread in arrival order.
//
// Waiting threads are parked on per-request channels and additionally
// re-poll with a capped exponential backoff, so a release that races the
// fast path's waiter-emptiness test can delay a waiter but never strand it.
//
// Monitors are created by inflation and reclaimed by [Runtime.DeflateIdle],
// which restores the displaced header once a monitor has no owner, no
// recursion and no waiters. The package never frees a monitor that any
// header word still points at.
package heavy
