package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudx-io/boxauction/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Build, seal and inspect box catalogs.",
}

var (
	buildOut      string
	buildCompress bool
	buildSignKey  string
)

var catalogBuildCmd = &cobra.Command{
	Use:   "build <source.yaml>",
	Short: "Compile a YAML catalog source into a CBOR artifact.",
	Long: "Compile a YAML catalog source into a deterministic CBOR artifact. " +
		"With --compress the artifact is zstd-compressed; with --sign-key it is sealed as COSE_Sign1.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if buildCompress && buildSignKey != "" {
			return errors.New("--compress and --sign-key are mutually exclusive")
		}
		cat, err := catalog.LoadSource(args[0])
		if err != nil {
			return err
		}

		var out []byte
		switch {
		case buildSignKey != "":
			keyPEM, err := os.ReadFile(buildSignKey)
			if err != nil {
				return fmt.Errorf("read signing key: %w", err)
			}
			key, err := catalog.ParsePrivateKeyPEM(keyPEM)
			if err != nil {
				return err
			}
			if out, err = cat.Seal(key); err != nil {
				return err
			}
		default:
			if out, err = cat.MarshalArtifact(); err != nil {
				return err
			}
			if buildCompress {
				if out, err = catalog.Compress(out); err != nil {
					return err
				}
			}
		}

		if err := os.WriteFile(buildOut, out, 0o644); err != nil {
			return fmt.Errorf("write catalog artifact: %w", err)
		}
		fmt.Printf("Wrote %d entries (%d bytes) to %s\n", cat.Len(), len(out), buildOut)
		return nil
	},
}

var (
	inspectVerifyKey string
	inspectFormat    string
)

var catalogInspectCmd = &cobra.Command{
	Use:   "inspect <catalog>",
	Short: "Print a catalog as JSON or YAML.",
	Long: "Print a catalog (YAML source, CBOR artifact, .zst artifact, or sealed with --verify-key) as JSON, " +
		"or with --format yaml as a catalog source that catalog build accepts.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectFormat != "json" && inspectFormat != "yaml" {
			return fmt.Errorf("unsupported format %q", inspectFormat)
		}
		var (
			cat *catalog.Catalog
			err error
		)
		if inspectVerifyKey != "" {
			cat, err = openSealedFile(args[0], inspectVerifyKey)
		} else {
			cat, err = catalog.Load(args[0])
		}
		if err != nil {
			return err
		}

		if inspectFormat == "yaml" {
			src, err := cat.MarshalSource()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(src)
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"attributes_registry_address": cat.RegistryAddress(),
			"material_address":            cat.MaterialAddress(),
			"attribute_ids":               catalog.AttributeIDs,
			"entries":                     cat.Entries(),
		})
	},
}

var keygenOut string

var catalogKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a P-256 catalog sealing key pair.",
	Long:  "Generate a P-256 key pair, writing <out>.pem (private) and <out>.pub (public).",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := catalog.GenerateSealingKey()
		if err != nil {
			return err
		}
		privPEM, err := catalog.MarshalPrivateKeyPEM(key)
		if err != nil {
			return err
		}
		pubPEM, err := catalog.MarshalPublicKeyPEM(&key.PublicKey)
		if err != nil {
			return err
		}
		if err := os.WriteFile(keygenOut+".pem", privPEM, 0o600); err != nil {
			return fmt.Errorf("write private key: %w", err)
		}
		if err := os.WriteFile(keygenOut+".pub", pubPEM, 0o644); err != nil {
			return fmt.Errorf("write public key: %w", err)
		}
		fmt.Printf("Wrote %s.pem and %s.pub\n", keygenOut, keygenOut)
		return nil
	},
}

func openSealedFile(path, verifyKeyPath string) (*catalog.Catalog, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sealed catalog: %w", err)
	}
	pubPEM, err := os.ReadFile(verifyKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read verification key: %w", err)
	}
	pub, err := catalog.ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, err
	}
	return catalog.OpenSealed(sealed, pub)
}

func init() {
	catalogBuildCmd.Flags().StringVarP(&buildOut, "out", "o", "boxes.cbor", "output path")
	catalogBuildCmd.Flags().BoolVar(&buildCompress, "compress", false, "zstd-compress the artifact")
	catalogBuildCmd.Flags().StringVar(&buildSignKey, "sign-key", "", "PEM private key to seal the artifact with")

	catalogInspectCmd.Flags().StringVar(&inspectVerifyKey, "verify-key", "", "PEM public key of a sealed catalog")
	catalogInspectCmd.Flags().StringVar(&inspectFormat, "format", "json", "output format: json or yaml")

	catalogKeygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "seal", "output path prefix")

	catalogCmd.AddCommand(catalogBuildCmd, catalogInspectCmd, catalogKeygenCmd)
	rootCmd.AddCommand(catalogCmd)
}
