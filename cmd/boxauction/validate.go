package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudx-io/boxauction/store"
	"github.com/cloudx-io/boxauction/validation"
)

var outputFormat string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Audit event logs and sealed catalogs.",
	Long:  "Audit event logs and sealed catalogs. Exits 0 when valid, 1 when invalid, 2 on error.",
}

var (
	eventsStorePath string
	eventsHead      string
)

var validateEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Audit the stored bid event log against the configured auctions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		slots, err := cfg.SlotConfigs()
		if err != nil {
			return err
		}

		path := cfg.Store.Path
		if eventsStorePath != "" {
			path = eventsStorePath
		}
		st, err := store.Open(path)
		if err != nil {
			return err
		}
		events, err := st.Load()
		if closeErr := st.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}

		result, err := validation.ValidateEventLog(&validation.EventLogValidationInput{
			Events:       events,
			Slots:        slots,
			ExpectedHead: eventsHead,
		})
		if err != nil {
			return err
		}

		summary := []summaryLine{
			{"Hash Chain Valid", "hash_chain_valid", result.ChainValid},
			{"Slots Valid", "slots_valid", result.SlotsValid},
			{"Supply Valid", "supply_valid", result.SupplyValid},
			{"Head Valid", "head_valid", result.HeadValid},
		}
		extra := map[string]any{"events": result.Events, "head": result.Head}
		if err := printResult("Bid Event Log Validator", summary, extra, result.ValidationDetails, result.IsValid()); err != nil {
			return err
		}
		if !result.IsValid() {
			return errValidationFailed
		}
		return nil
	},
}

var (
	catalogVerifyKey string
	catalogEntries   int
)

var validateCatalogCmd = &cobra.Command{
	Use:   "catalog <sealed-catalog>",
	Short: "Verify a sealed catalog's signature and contents.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sealed, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read sealed catalog: %w", err)
		}
		pubPEM, err := os.ReadFile(catalogVerifyKey)
		if err != nil {
			return fmt.Errorf("read verification key: %w", err)
		}

		result, err := validation.ValidateSealedCatalog(&validation.CatalogValidationInput{
			Sealed:          sealed,
			PublicKeyPEM:    pubPEM,
			ExpectedEntries: catalogEntries,
		})
		if err != nil {
			return err
		}

		summary := []summaryLine{
			{"Signature Valid", "signature_valid", result.SignatureValid},
			{"Content Valid", "content_valid", result.ContentValid},
			{"Entries Valid", "entries_valid", result.EntriesValid},
		}
		extra := map[string]any{"entries": result.Entries}
		if err := printResult("Sealed Catalog Validator", summary, extra, result.ValidationDetails, result.IsValid()); err != nil {
			return err
		}
		if !result.IsValid() {
			return errValidationFailed
		}
		return nil
	},
}

type summaryLine struct {
	label string
	key   string
	ok    bool
}

func printResult(title string, summary []summaryLine, extra map[string]any, details []string, valid bool) error {
	if outputFormat == "json" {
		output := map[string]any{
			"valid":   valid,
			"details": details,
		}
		for _, line := range summary {
			output[line.key] = line.ok
		}
		for k, v := range extra {
			output[k] = v
		}
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(title)
	fmt.Println("==================================")
	fmt.Println()
	fmt.Println("Summary:")
	for _, line := range summary {
		fmt.Printf("  %-20s %v\n", line.label+":", line.ok)
	}
	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range details {
		fmt.Printf("  - %s\n", detail)
	}
	fmt.Println()
	fmt.Println("==================================")
	if valid {
		fmt.Println("VALIDATION: PASSED")
	} else {
		fmt.Println("VALIDATION: FAILED")
	}
	return nil
}

func init() {
	validateCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "output format: text or json")

	validateEventsCmd.Flags().StringVar(&eventsStorePath, "store", "", "event store path (default: store.path from config)")
	validateEventsCmd.Flags().StringVar(&eventsHead, "head", "", "expected head hash")

	validateCatalogCmd.Flags().StringVar(&catalogVerifyKey, "verify-key", "", "PEM public key")
	validateCatalogCmd.Flags().IntVar(&catalogEntries, "entries", 0, "expected entry count (0 = any)")
	_ = validateCatalogCmd.MarkFlagRequired("verify-key")

	validateCmd.AddCommand(validateEventsCmd, validateCatalogCmd)
	rootCmd.AddCommand(validateCmd)
}
