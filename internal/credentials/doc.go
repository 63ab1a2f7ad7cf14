// Package credentials persists the OAuth token record used to talk to Google Drive.
//
// A single application identity owns one TokenRecord. Stores implement the
// Store interface; the package ships a file-backed store (default) and an
// in-memory store, and internal/redisstore provides a shared Redis backend.
//
// # Durability
//
// FileStore writes go to a temp file in the target directory, are fsynced and
// then renamed over the previous record, so concurrent readers observe either
// the old or the new record but never a partial one. Save and Clear are
// mutually exclusive within a process.
//
// # Corruption
//
// Any record that cannot be read back (malformed JSON, unknown schema version,
// failed decryption) is reported as a *StorageError. Callers treat this the
// same as an absent record and ask the user to authorize again.
//
// # Encryption at rest
//
// When a TokenEncryption with a key is supplied, the serialized record is
// sealed with AES-256-GCM before it is written:
//
//	key, _ := credentials.DeriveEncryptionKey(os.Getenv("ECGDRIVE_TOKEN_ENCRYPTION_KEY"))
//	enc, _ := credentials.NewTokenEncryption(key)
//	store := credentials.NewFileStore(path, enc)
package credentials
