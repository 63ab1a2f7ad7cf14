// Package redisstore keeps the token record and in-flight authorization
// states in Redis so several ecgdrive instances can share one Drive
// identity.
//
// Token records use the same versioned, optionally sealed document as the
// file store. Pending authorizations expire through Redis TTLs and are
// consumed with GETDEL, so a state value is accepted at most once across
// all instances.
package redisstore
