package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
)

// schemaVersion is the on-disk document version written by Codec.
const schemaVersion = 1

// document is the serialized envelope. Exactly one of Token or Sealed is set.
type document struct {
	Version int          `json:"version"`
	Token   *TokenRecord `json:"token,omitempty"`
	Sealed  string       `json:"sealed,omitempty"`
}

// Codec serializes token records, optionally sealing them with a TokenEncryption.
type Codec struct {
	enc *TokenEncryption
}

// NewCodec returns a codec; enc may be nil for plaintext records.
func NewCodec(enc *TokenEncryption) *Codec {
	return &Codec{enc: enc}
}

// Encode serializes rec into a versioned document.
func (c *Codec) Encode(rec *TokenRecord) ([]byte, error) {
	doc := document{Version: schemaVersion}

	if c.enc.Enabled() {
		plain, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encoding record: %w", err)
		}
		sealed, err := c.enc.Encrypt(plain)
		if err != nil {
			return nil, fmt.Errorf("sealing record: %w", err)
		}
		doc.Sealed = sealed
	} else {
		doc.Token = rec
	}

	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a document produced by Encode.
func (c *Codec) Decode(data []byte) (*TokenRecord, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	if doc.Version != schemaVersion {
		return nil, fmt.Errorf("unsupported record version %d", doc.Version)
	}

	switch {
	case doc.Sealed != "":
		if !c.enc.Enabled() {
			return nil, errors.New("record is encrypted but no encryption key is configured")
		}
		plain, err := c.enc.Decrypt(doc.Sealed)
		if err != nil {
			return nil, fmt.Errorf("unsealing record: %w", err)
		}
		var rec TokenRecord
		if err := json.Unmarshal(plain, &rec); err != nil {
			return nil, fmt.Errorf("decoding sealed record: %w", err)
		}
		return &rec, nil
	case doc.Token != nil:
		return doc.Token, nil
	default:
		return nil, errors.New("record has no token")
	}
}
