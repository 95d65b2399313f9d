// Package docsync promotes draft documents into the published tree while keeping
// node identity stable across both trees.
//
// A publish session is driven through a Coordinator:
//
//	draft store -> IdentityResolver / AncestorSynchronizer -> published store
//	                         ^
//	            RelationWalker (parent + referenced documents)
//
// Every document that reaches the published store carries the identifier of its
// draft node, and so does every ancestor created on its behalf. When the
// published store already holds a different identifier at the target path the
// session stops with a *SynchronizationConflictError instead of guessing.
//
// Registries cache Document -> NodeHandle bindings for the lifetime of one
// session. They make a repeated RegisterDocument call a no-op and must not be
// shared by concurrent sessions. The draft store is only read.
package docsync
