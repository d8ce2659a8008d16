// Package middleware adapts the sessionkit engine to net/http.
//
// It owns everything HTTP-specific that the engine deliberately does not:
// reading tokens out of cookies and headers, writing them back on create
// and refresh, expiring cookies on failure, and translating the engine's
// error taxonomy into status codes and JSON bodies.
//
// Architecture boundaries:
//
//   - the engine never sees *http.Request or http.ResponseWriter;
//   - this package never inspects token contents beyond transport framing;
//   - anti-CSRF custom-header enforcement lives here, because only the
//     transport layer knows whether a request could have been forged.
//
// What this package must NOT do: revoke sessions, mutate payloads, or make
// authorization decisions beyond relaying the engine's verdict.
package middleware
