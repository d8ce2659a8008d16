// Package sessionkit is a session-security SDK: signed access tokens with
// a dynamic claim payload, rotating opaque refresh tokens with reuse
// detection, anti-CSRF protection, and a standards-compliant JWT mirror
// for third-party consumers.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// sessionkit is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (Session, MetricsSnapshot, AuditEvent).
// Durable state lives behind the core.Client contract; two
// implementations ship with the module, core.HTTPClient for a remote core
// service and rediscore.Store for a Redis-backed in-process core.
//
// # Performance contract
//
// VerifySession is the hot path: token decode and claim validation run
// without any I/O unless VerifyOptions.CheckDatabase or a stale claim
// forces a round-trip. CreateSession and RefreshSession are allowed one
// core round-trip each.
package sessionkit
