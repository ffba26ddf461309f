package cmd

import (
	"context"
	"os"

	"github.com/kurumiimari/sealdex"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	prefix    string
	network   string
	serverURL string
	apiKey    string
	logLevel  string
	logJSON   bool
)

var cmdLogger = log.ModuleLogger("cmd")

var rootCmd = &cobra.Command{
	Use:          "sealdex",
	Short:        "A sealed-bid auction node",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := log.SetLevel(logLevel); err != nil {
			return errors.Wrap(err, "invalid log level")
		}
		log.SetJSON(logJSON)

		network, err := chain.NetworkFromName(network)
		if err != nil {
			return errors.Wrap(err, "invalid network")
		}

		dd, err := auctiondb.NewDataDir(prefix)
		if err != nil {
			return errors.Wrap(err, "invalid prefix")
		}
		if err := dd.EnsureNetwork(network.Name); err != nil {
			return errors.Wrap(err, "error creating network directory")
		}

		sealdex.Config.Prefix = dd.NetworkPath(network.Name)
		sealdex.Config.Network = network
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&prefix, "prefix", "~/.sealdex", "Sets sealdex's data directory")
	rootCmd.PersistentFlags().StringVarP(&network, "network", "n", "main", "Sets sealdex's network")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server-url", "u", "", "Sets a custom sealdex API server url")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Sets the API key.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Sets the log level")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emits logs as JSON")
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
