package validation

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/boxauction/catalog"
)

func sealTestCatalog(t *testing.T) (sealed []byte, pubPEM []byte) {
	t.Helper()
	cat, err := catalog.LoadSource(filepath.Join("..", "catalog", "testdata", "boxes.yaml"))
	assert.NoError(t, err)
	key, err := catalog.GenerateSealingKey()
	assert.NoError(t, err)

	sealed, err = cat.Seal(key)
	assert.NoError(t, err)
	pubPEM, err = catalog.MarshalPublicKeyPEM(&key.PublicKey)
	assert.NoError(t, err)
	return sealed, pubPEM
}

func TestValidateSealedCatalog(t *testing.T) {
	sealed, pubPEM := sealTestCatalog(t)

	otherKey, err := catalog.GenerateSealingKey()
	assert.NoError(t, err)
	otherPEM, err := catalog.MarshalPublicKeyPEM(&otherKey.PublicKey)
	assert.NoError(t, err)

	tampered := bytes.Clone(sealed)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name          string
		input         CatalogValidationInput
		wantValid     bool
		wantSignature bool
		wantEntries   int
	}{
		{
			name:          "valid",
			input:         CatalogValidationInput{Sealed: sealed, PublicKeyPEM: pubPEM, ExpectedEntries: 5},
			wantValid:     true,
			wantSignature: true,
			wantEntries:   5,
		},
		{
			name:          "any size",
			input:         CatalogValidationInput{Sealed: sealed, PublicKeyPEM: pubPEM},
			wantValid:     true,
			wantSignature: true,
			wantEntries:   5,
		},
		{
			name:          "entry count mismatch",
			input:         CatalogValidationInput{Sealed: sealed, PublicKeyPEM: pubPEM, ExpectedEntries: 4},
			wantSignature: true,
			wantEntries:   5,
		},
		{
			name:  "wrong key",
			input: CatalogValidationInput{Sealed: sealed, PublicKeyPEM: otherPEM},
		},
		{
			name:  "tampered",
			input: CatalogValidationInput{Sealed: tampered, PublicKeyPEM: pubPEM},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateSealedCatalog(&tt.input)
			assert.NoError(t, err)

			check.Equal(t, tt.wantValid, result.IsValid())
			check.Equal(t, tt.wantSignature, result.SignatureValid)
			check.Equal(t, tt.wantEntries, result.Entries)
			check.True(t, len(result.ValidationDetails) > 0)
		})
	}
}

func TestValidateSealedCatalog_BadKey(t *testing.T) {
	sealed, _ := sealTestCatalog(t)

	_, err := ValidateSealedCatalog(&CatalogValidationInput{Sealed: sealed, PublicKeyPEM: []byte("nope")})
	check.Error(t, err)

	_, err = ValidateSealedCatalog(nil)
	check.Error(t, err)
}
