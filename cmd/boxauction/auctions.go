package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudx-io/boxauction/bidapi"
	"github.com/cloudx-io/boxauction/service"
)

var auctionsCmd = &cobra.Command{
	Use:   "auctions",
	Short: "Print every auction slot as JSON, last configured slot first.",
	Long:  "Replay the event store and print the current state of every auction slot. Must not run against a store held by a running engine.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		svc, err := service.New(cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bidapi.AuctionDataResponse{
			Type:     bidapi.TypeAuctionData,
			Auctions: svc.AuctionData(),
		})
	},
}

func init() {
	rootCmd.AddCommand(auctionsCmd)
}
