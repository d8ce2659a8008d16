// Package token implements the signed access-token envelope: a versioned
// JWT carrying the session's standard fields alongside the dynamic claim
// payload. Decoding is the local verification fast path and never performs
// I/O; key material and rotation policy are supplied by the caller.
package token
