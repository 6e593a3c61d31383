// Package queue provides the Mailbox, a lock-free Multi-Producer Single-Consumer (MPSC) FIFO.
//
// A Mailbox is used in two roles by the inventory server:
//
//   - the global request channel: every client session and the backup timer Put requests,
//     the database worker is the only consumer.
//   - a per-session reply channel: the worker Puts exactly one reply per request,
//     the owning session Waits for it.
//
// Features and Guarantees:
//
//   - Lock-Free Put: atomic CAS on the tail for high throughput under contention
//   - Unbounded Size: the mailbox grows as needed, limited only by available memory
//   - FIFO: values are delivered in the order in which their Put completed the CAS on the tail.
//     Under concurrent Puts the order is decided by which producer wins, not by which started first.
//   - At-most-once: every value is returned by exactly one Get/Wait call
//   - Non-blocking Get for polling consumers, blocking Wait(ctx) with cancellation and timeouts
//   - Close: rejects further Puts, already queued values are still delivered
package queue
