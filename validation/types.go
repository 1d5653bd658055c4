package validation

// EventLogValidationResult contains the results of auditing a bid event log
type EventLogValidationResult struct {
	ChainValid        bool
	SlotsValid        bool
	SupplyValid       bool
	HeadValid         bool
	Events            int
	Head              string
	Sold              map[int]uint64
	ValidationDetails []string
}

// IsValid returns true if all event log checks passed
func (r *EventLogValidationResult) IsValid() bool {
	return r.ChainValid && r.SlotsValid && r.SupplyValid && r.HeadValid
}

// CatalogValidationResult contains the results of verifying a sealed catalog
type CatalogValidationResult struct {
	SignatureValid    bool
	ContentValid      bool
	EntriesValid      bool
	Entries           int
	ValidationDetails []string
}

// IsValid returns true if all catalog checks passed
func (r *CatalogValidationResult) IsValid() bool {
	return r.SignatureValid && r.ContentValid && r.EntriesValid
}
