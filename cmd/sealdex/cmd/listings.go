package cmd

import (
	"github.com/kurumiimari/sealdex/api"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	listingDescription string
	listingImageURL    string
	listingMinimum     string
	listingOwner       string
	listingState       string
	listingCount       int
	listingOffset      int
	cancelCaller       string
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Create and manage sealed-bid auction listings",
}

var createListingCmd = &cobra.Command{
	Use:   "create [owner] [item-name] [reveal-height] [end-height]",
	Short: "Creates a listing",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		revealHeight, err := uint64Arg(args[2], "reveal height")
		if err != nil {
			return err
		}
		endHeight, err := uint64Arg(args[3], "end height")
		if err != nil {
			return err
		}
		minimum, err := amountArg(listingMinimum, 0)
		if err != nil {
			return errors.Wrap(err, "invalid minimum")
		}

		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		listing, err := client.CreateListing(cmd.Context(), &api.CreateListingReq{
			Owner:         args[0],
			ItemName:      args[1],
			Description:   listingDescription,
			ImageURL:      listingImageURL,
			MinimumAmount: minimum,
			RevealHeight:  revealHeight,
			EndHeight:     endHeight,
		})
		if err != nil {
			return err
		}
		return printJSON(listing)
	},
}

var getListingCmd = &cobra.Command{
	Use:   "get [listing-id]",
	Short: "Returns a listing",
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
		listing, err := client.GetListing(cmd.Context(), listingID)
		if err != nil {
			return err
		}
		return printJSON(listing)
	},
}

var listListingsCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists listings, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var owner chain.Principal
		if listingOwner != "" {
			p, err := chain.ParsePrincipal(listingOwner)
			if err != nil {
				return errors.Wrap(err, "invalid owner")
			}
			owner = p
		}
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		listings, err := client.ListListings(cmd.Context(), owner, auctiondb.ListingState(listingState), listingCount, listingOffset)
		if err != nil {
			return err
		}
		return printJSON(&api.ListingsRes{Listings: listings})
	},
}

var cancelListingCmd = &cobra.Command{
	Use:   "cancel [listing-id]",
	Short: "Cancels a listing that has no bids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		listingID, err := uint64Arg(args[0], "listing ID")
		if err != nil {
			return err
		}
		caller, err := chain.ParsePrincipal(cancelCaller)
		if err != nil {
			return errors.Wrap(err, "invalid caller")
		}
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		listing, err := client.CancelListing(cmd.Context(), listingID, caller)
		if err != nil {
			return err
		}
		return printJSON(listing)
	},
}

var selectWinnerCmd = &cobra.Command{
	Use:   "select-winner [listing-id]",
	Short: "Ends a listing and records its winner",
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
		res, err := client.SelectWinner(cmd.Context(), listingID)
		if err != nil {
			return err
		}
		if res.Outcome != "" {
			cmdLogger.Info("listing ended without a winner", "listing_id", listingID, "outcome", res.Outcome)
		} else if res.Listing.WinningAmount != nil {
			cmdLogger.Info(
				"listing won",
				"listing_id", listingID,
				"winner", res.Listing.Winner,
				"amount", formatAmount(*res.Listing.WinningAmount),
			)
		}
		return printJSON(res)
	},
}

var winnerCmd = &cobra.Command{
	Use:   "winner [listing-id]",
	Short: "Recomputes a listing's winner from its revealed bids",
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
		winner, err := client.Winner(cmd.Context(), listingID)
		if err != nil {
			return err
		}
		return printJSON(winner)
	},
}

func init() {
	createListingCmd.Flags().StringVar(&listingDescription, "description", "", "Describes the item")
	createListingCmd.Flags().StringVar(&listingImageURL, "image-url", "", "Links an image of the item")
	createListingCmd.Flags().StringVar(&listingMinimum, "minimum", "0", "Sets the minimum winning amount")
	listListingsCmd.Flags().StringVar(&listingOwner, "owner", "", "Only lists this owner's listings")
	listListingsCmd.Flags().StringVar(&listingState, "state", "", "Only lists listings in this state")
	listListingsCmd.Flags().IntVar(&listingCount, "count", 50, "Number of listings to return")
	listListingsCmd.Flags().IntVar(&listingOffset, "offset", 0, "Number of listings to skip")
	cancelListingCmd.Flags().StringVar(&cancelCaller, "caller", "", "The listing owner's address")
	_ = cancelListingCmd.MarkFlagRequired("caller")

	listingsCmd.AddCommand(createListingCmd)
	listingsCmd.AddCommand(getListingCmd)
	listingsCmd.AddCommand(listListingsCmd)
	listingsCmd.AddCommand(cancelListingCmd)
	listingsCmd.AddCommand(selectWinnerCmd)
	listingsCmd.AddCommand(winnerCmd)
	rootCmd.AddCommand(listingsCmd)
}
