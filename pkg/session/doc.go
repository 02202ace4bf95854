// Package session supervises the Connection to one receiver.
//
// A Session is the layer above package connection: it serializes commands,
// validates them against the command registry, tracks device health and
// replaces the Connection when the transport fails.
//
// # Reconnection Strategy
//
// After an I/O failure, or after FailureThreshold consecutive timeouts, the
// session reconnects with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Reset to 1s after a successful reconnect
//
// Each delay gets up to 25% random jitter. The command that failed is never
// retried; the caller decides whether to resend.
//
// # Health
//
//	UNKNOWN ──first reply──▶ OK ──failure──▶ DEGRADED ──3 failures──▶ DISCONNECTED
//	                          ▲                                            │
//	                          └──────────────────success───────────────────┘
package session
