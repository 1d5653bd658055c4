package bidapi

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// SealedCatalog is a raw COSE_Sign1 sealed catalog.
type SealedCatalog []byte

// SealedCatalogBase64 is a standard base64-encoded SealedCatalog.
type SealedCatalogBase64 string

// SealedCatalogURLBase64 is a URL-safe, unpadded base64-encoded SealedCatalog.
type SealedCatalogURLBase64 string

// EncodeBase64 encodes the sealed catalog as standard base64.
func (s SealedCatalog) EncodeBase64() SealedCatalogBase64 {
	return SealedCatalogBase64(base64.StdEncoding.EncodeToString(s))
}

// EncodeURLSafe encodes the sealed catalog as URL-safe base64 without padding.
func (s SealedCatalog) EncodeURLSafe() SealedCatalogURLBase64 {
	return SealedCatalogURLBase64(base64.RawURLEncoding.EncodeToString(s))
}

// Decode decodes standard base64 to raw bytes.
func (s SealedCatalogBase64) Decode() (SealedCatalog, error) {
	data, err := base64.StdEncoding.DecodeString(string(s))
	if err != nil {
		return nil, fmt.Errorf("decode sealed catalog base64: %w", err)
	}
	return SealedCatalog(data), nil
}

// String returns the encoded form.
func (s SealedCatalogBase64) String() string {
	return string(s)
}

// Decode decodes URL-safe base64, tolerating padding.
func (s SealedCatalogURLBase64) Decode() (SealedCatalog, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(s), "="))
	if err != nil {
		return nil, fmt.Errorf("decode sealed catalog base64url: %w", err)
	}
	return SealedCatalog(data), nil
}

// String returns the encoded form.
func (s SealedCatalogURLBase64) String() string {
	return string(s)
}
