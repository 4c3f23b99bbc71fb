// Package session stores per-conversation state outside the request: the
// pinned language and the active contract type.
//
// Two backends are provided. [MemoryStore] serves single-process deployments
// and tests; [RedisStore] lets several stateless workers share sessions.
// [KeyedMutex] serialises first-message language detection inside one
// process, and the store's set-once pin settles races across processes.
package session
