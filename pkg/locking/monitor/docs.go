// Package monitor implements tierlock's adaptive, tiered mutual-exclusion
// protocol over the header word of a lockable [Object].
//
// # Overview
//
// Every object can be used as a lock. The common case of one thread
// repeatedly entering and exiting the same uncontended lock must be nearly
// free, while genuine contention still gets full blocking semantics. Three
// tiers provide this:
//
//   - Biased: the header records an owning thread identity and epoch;
//     re-entry by that thread is one load and one comparison, no atomics.
//   - Lightweight: one compare-and-swap displaces the unlocked header into a
//     thread-scoped [LockRecord] and publishes the record handle instead.
//   - Inflated: the header points at an external heavyweight monitor with
//     owner, recursion and wait-queue state; the fast path here is a single
//     owner CAS, everything else escalates.
//
// # Components
//
// [Manager] is the single public entry point. Callers use [Manager.Enter]
// and [Manager.Exit]; internally it coordinates:
//
//   - [BiasProtocol]: bias hit, anonymous acquisition, epoch-expired
//     transfer, and type-revocation fallthrough.
//   - [LightweightProtocol]: stack-lock publish and restore, with recursion
//     detected by record-handle membership and recorded as a zero sentinel.
//   - [InflatedProtocol]: uncontended owner CAS against a [HeavyMonitor]
//     resolved through the injected [MonitorTable].
//   - [TypeRegistry]: per-type prototype headers; the authority for bias
//     epochs, re-read on every operation.
//   - [DiagnosticSink]: one increment per taken path, purely observational.
//
// When every fast tier fails, the attempt is handed to the injected
// [SlowPath], which may block; nothing inside this package ever does. Each
// fast-tier operation performs at most two atomic operations.
//
// # Failure semantics
//
// CAS failures, epoch mismatches and foreign owners are expected contention,
// handled by escalating one tier and never reported to the caller. The only
// caller-visible error from correct composition is [ErrNilTarget]. The
// optional per-thread balance check ([Thread.EnableBalanceChecking]) turns
// an enter/exit count mismatch into a fatal abort; it must never fire under
// correct usage.
//
// # Invariants
//
//   - The header word is mutated exclusively by compare-and-swap whose
//     comparand is the exact previously observed word.
//   - The collector-owned age bits round-trip unchanged through every
//     transition of every tier.
//   - While light-locked, the object's logical header lives in the owning
//     record's displaced slot; only the outermost exit restores it.
//   - A [LockRecord] never escapes its thread; its handle is published only
//     as an opaque comparand.
package monitor
