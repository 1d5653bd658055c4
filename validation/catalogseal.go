package validation

import (
	"errors"
	"fmt"

	"github.com/cloudx-io/boxauction/bidapi"
	"github.com/cloudx-io/boxauction/catalog"
)

// CatalogValidationInput contains all inputs needed to verify a sealed catalog
type CatalogValidationInput struct {
	Sealed          bidapi.SealedCatalog
	PublicKeyPEM    []byte
	ExpectedEntries int // 0 = any size
}

// ValidateSealedCatalog verifies that a sealed catalog was signed by the
// holder of the key in PublicKeyPEM and that its payload is a well-formed
// catalog of the expected size.
//
// Returns:
//   - CatalogValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., unreadable key)
func ValidateSealedCatalog(input *CatalogValidationInput) (*CatalogValidationResult, error) {
	if input == nil {
		return nil, errors.New("validation input is nil")
	}

	pub, err := catalog.ParsePublicKeyPEM(input.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse verification key: %w", err)
	}

	result := &CatalogValidationResult{}

	cat, err := catalog.OpenSealed(input.Sealed, pub)
	switch {
	case errors.Is(err, catalog.ErrInvalidSeal):
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Signature verification failed: %v", err))
		return result, nil
	case err != nil:
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "Signature valid")
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Catalog payload invalid: %v", err))
		return result, nil
	}

	result.SignatureValid = true
	result.ContentValid = true
	result.Entries = cat.Len()
	result.ValidationDetails = append(result.ValidationDetails, "Signature valid")
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Catalog decoded: %d entries", cat.Len()))

	result.EntriesValid = input.ExpectedEntries == 0 || input.ExpectedEntries == cat.Len()
	if !result.EntriesValid {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Entry count mismatch: expected %d, catalog has %d", input.ExpectedEntries, cat.Len()))
	}

	return result, nil
}
