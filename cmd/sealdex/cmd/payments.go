package cmd

import (
	"github.com/kurumiimari/sealdex"
	"github.com/kurumiimari/sealdex/api"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	paymentSourceChain uint64
	paymentDestChain   uint64
	paymentExpected    string
	paymentFee         string
	failReason         string
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Pay for won listings and track settlements",
}

var initiatePaymentCmd = &cobra.Command{
	Use:   "initiate [listing-id] [payer] [source-amount]",
	Short: "Initiates a winner's payment for a listing",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		listingID, err := uint64Arg(args[0], "listing ID")
		if err != nil {
			return err
		}
		network := sealdex.Config.Network
		source := paymentSourceChain
		if source == 0 {
			source = network.ReferenceChainID
		}
		dest := paymentDestChain
		if dest == 0 {
			dest = source
		}

		sourceAmount, err := amountArg(args[2], source)
		if err != nil {
			return errors.Wrap(err, "invalid source amount")
		}
		expected := sourceAmount
		if paymentExpected != "" {
			expected, err = amountArg(paymentExpected, dest)
			if err != nil {
				return errors.Wrap(err, "invalid expected amount")
			}
		}
		fee, err := amountArg(paymentFee, source)
		if err != nil {
			return errors.Wrap(err, "invalid solver fee")
		}

		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		req, err := client.InitiatePayment(cmd.Context(), listingID, &api.InitiatePaymentReq{
			Payer:            args[1],
			SourceChain:      source,
			DestinationChain: dest,
			SourceAmount:     sourceAmount,
			ExpectedAmount:   expected,
			SolverFee:        fee,
		})
		if err != nil {
			return err
		}
		return printJSON(req)
	},
}

var getSettlementCmd = &cobra.Command{
	Use:   "get [request-id]",
	Short: "Returns a settlement request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		req, err := client.GetSettlement(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(req)
	},
}

var listSettlementsCmd = &cobra.Command{
	Use:   "list [listing-id]",
	Short: "Lists a listing's settlement requests",
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
		reqs, err := client.ListSettlements(cmd.Context(), listingID)
		if err != nil {
			return err
		}
		return printJSON(&api.SettlementsRes{Settlements: reqs})
	},
}

var staleSettlementsCmd = &cobra.Command{
	Use:   "stale",
	Short: "Lists pending settlement requests that have waited too long",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		reqs, err := client.ListStaleSettlements(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(&api.SettlementsRes{Settlements: reqs})
	},
}

var failSettlementCmd = &cobra.Command{
	Use:   "fail [request-id]",
	Short: "Marks a pending settlement request failed so the winner can retry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		req, err := client.FailSettlement(cmd.Context(), args[0], failReason)
		if err != nil {
			return err
		}
		return printJSON(req)
	},
}

func init() {
	initiatePaymentCmd.Flags().Uint64Var(&paymentSourceChain, "source-chain", 0, "Chain the payment is sent from, defaults to the reference chain")
	initiatePaymentCmd.Flags().Uint64Var(&paymentDestChain, "destination-chain", 0, "Chain the payment is delivered to, defaults to the source chain")
	initiatePaymentCmd.Flags().StringVar(&paymentExpected, "expected", "", "Amount the seller should receive, defaults to the source amount")
	initiatePaymentCmd.Flags().StringVar(&paymentFee, "solver-fee", "0", "Fee paid to the solver on cross-chain payments")
	failSettlementCmd.Flags().StringVar(&failReason, "reason", "", "Reason recorded with the failure")

	paymentsCmd.AddCommand(initiatePaymentCmd)
	paymentsCmd.AddCommand(getSettlementCmd)
	paymentsCmd.AddCommand(listSettlementsCmd)
	paymentsCmd.AddCommand(staleSettlementsCmd)
	paymentsCmd.AddCommand(failSettlementCmd)
	rootCmd.AddCommand(paymentsCmd)
}
