// Package claims defines the claim model attached to session payloads: typed,
// namespaced facts with fetchers, the value-semantics payload merge used by
// every payload mutation, and the validator variants evaluated on protected
// requests.
//
// The package is a leaf: it performs no I/O of its own. Refetch-and-persist
// orchestration lives in the session engine; claim fetchers receive the
// request context and may suspend, but validators are pure predicates over
// the payload.
package claims
