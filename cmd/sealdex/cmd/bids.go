package cmd

import (
	"os"

	"github.com/kurumiimari/sealdex/api"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	envelopeOut  string
	envelopeIn   string
	bidderCount  int
	bidderOffset int
)

var bidsCmd = &cobra.Command{
	Use:   "bids",
	Short: "Seal, submit and inspect bids",
}

var sealBidCmd = &cobra.Command{
	Use:   "seal [listing-id] [amount]",
	Short: "Seals a bid amount to a listing's reveal height",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		listingID, err := uint64Arg(args[0], "listing ID")
		if err != nil {
			return err
		}
		amount, err := amountArg(args[1], 0)
		if err != nil {
			return err
		}

		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		env, err := client.SealBid(cmd.Context(), listingID, amount)
		if err != nil {
			return err
		}

		if envelopeOut == "" {
			return printJSON(&api.SealBidRes{
				Envelope:    env,
				EnvelopeRef: env.Ref(),
			})
		}

		f, err := os.OpenFile(envelopeOut, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return errors.Wrap(err, "error opening envelope file")
		}
		defer f.Close()
		if err := timelock.WriteEnvelopeFile(&timelock.EnvelopeFile{
			ListingID: listingID,
			Amount:    amount,
			Envelope:  env,
		}, f); err != nil {
			return errors.Wrap(err, "error writing envelope file")
		}
		cmdLogger.Info("wrote envelope file", "path", envelopeOut, "envelope_ref", env.Ref())
		return nil
	},
}

var submitBidCmd = &cobra.Command{
	Use:   "submit [bidder]",
	Short: "Submits a sealed bid from an envelope file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bidder, err := chain.ParsePrincipal(args[0])
		if err != nil {
			return errors.Wrap(err, "invalid bidder")
		}

		f, err := os.Open(envelopeIn)
		if err != nil {
			return errors.Wrap(err, "error opening envelope file")
		}
		defer f.Close()
		envFile, err := timelock.ReadEnvelopeFile(f)
		if err != nil {
			return err
		}

		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		bid, err := client.SubmitBid(cmd.Context(), envFile.ListingID, bidder, envFile.Envelope)
		if err != nil {
			return err
		}
		return printJSON(bid)
	},
}

var listBidsCmd = &cobra.Command{
	Use:   "list [listing-id]",
	Short: "Lists a listing's bids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		listingID, err := uint64Arg(args[0], "listing ID")
		if err != nil {
			return err
		}
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		bids, err := client.ListBids(cmd.Context(), listingID)
		if err != nil {
			return err
		}
		return printJSON(&api.BidsRes{Bids: bids})
	},
}

var bidderBidsCmd = &cobra.Command{
	Use:   "by-bidder [bidder]",
	Short: "Lists a bidder's bids across listings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bidder, err := chain.ParsePrincipal(args[0])
		if err != nil {
			return errors.Wrap(err, "invalid bidder")
		}
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		bids, err := client.ListBidsByBidder(cmd.Context(), bidder, bidderCount, bidderOffset)
		if err != nil {
			return err
		}
		return printJSON(&api.BidsRes{Bids: bids})
	},
}

var getBidCmd = &cobra.Command{
	Use:   "get [bid-id]",
	Short: "Returns a bid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bidID, err := uint64Arg(args[0], "bid ID")
		if err != nil {
			return err
		}
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		bid, err := client.GetBid(cmd.Context(), bidID)
		if err != nil {
			return err
		}
		return printJSON(bid)
	},
}

func init() {
	sealBidCmd.Flags().StringVar(&envelopeOut, "out", "", "Writes the envelope to a file instead of stdout")
	submitBidCmd.Flags().StringVar(&envelopeIn, "file", "", "Envelope file written by bids seal")
	_ = submitBidCmd.MarkFlagRequired("file")
	bidderBidsCmd.Flags().IntVar(&bidderCount, "count", 50, "Number of bids to return")
	bidderBidsCmd.Flags().IntVar(&bidderOffset, "offset", 0, "Number of bids to skip")

	bidsCmd.AddCommand(sealBidCmd)
	bidsCmd.AddCommand(submitBidCmd)
	bidsCmd.AddCommand(listBidsCmd)
	bidsCmd.AddCommand(bidderBidsCmd)
	bidsCmd.AddCommand(getBidCmd)
	rootCmd.AddCommand(bidsCmd)
}
