package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kurumiimari/sealdex"
	"github.com/kurumiimari/sealdex/api"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/spf13/cobra"
	"gopkg.in/tomb.v2"
)

var (
	oracleURL    string
	oracleAPIKey string
	devMode      bool
	devMnemonic  string
	port         int
	pollInterval time.Duration
	staleAfter   time.Duration
	autoSelect   bool
	mineCount    uint64
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Returns status information about the auction node",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		status, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the sealdex daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic := devMnemonic
		if mnemonic == "" {
			mnemonic = os.Getenv("SEALDEX_DEV_MNEMONIC")
		}
		if mnemonic == "" && devMode {
			generated, err := timelock.GenerateDevMnemonic()
			if err != nil {
				return err
			}
			cmdLogger.Warning("generated a throwaway decryption network mnemonic")
			mnemonic = generated
		}

		tmb := new(tomb.Tomb)

		go func() {
			sigC := make(chan os.Signal, 1)
			signal.Notify(sigC, syscall.SIGTERM, syscall.SIGINT)
			select {
			case sig := <-sigC:
				cmdLogger.Info("caught signal, shutting down", "signal", sig.String())
				tmb.Kill(nil)
				return
			case <-tmb.Dying():
				return
			}
		}()

		return api.Start(tmb, &api.Options{
			Network:      sealdex.Config.Network,
			Prefix:       sealdex.Config.Prefix,
			Port:         port,
			APIKey:       apiKey,
			OracleURL:    oracleURL,
			OracleAPIKey: oracleAPIKey,
			PollInterval: pollInterval,
			Dev:          devMode,
			DevMnemonic:  mnemonic,
			StaleAfter:   staleAfter,
			AutoSelect:   autoSelect,
		})
	},
}

var pollHeightCmd = &cobra.Command{
	Use:   "poll-height",
	Short: "Polls the reference chain's height immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		height, err := client.PollHeight(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(&api.HeightRes{Height: height})
	},
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Advances the development chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := apiClient(cmd.Context())
		if err != nil {
			return err
		}
		height, err := client.Mine(cmd.Context(), mineCount)
		if err != nil {
			return err
		}
		return printJSON(&api.HeightRes{Height: height})
	},
}

func init() {
	startCmd.Flags().StringVar(&oracleURL, "oracle-url", "", "Sets the reference chain oracle's RPC URL")
	startCmd.Flags().StringVar(&oracleAPIKey, "oracle-api-key", "", "Sets the reference chain oracle's API key")
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Runs the chain, decryption network and solver in-process")
	startCmd.Flags().StringVar(&devMnemonic, "dev-mnemonic", "", "Seeds the decryption network's keys")
	startCmd.Flags().IntVar(&port, "port", 0, "Sets the API port")
	startCmd.Flags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "Sets how often the chain height is polled")
	startCmd.Flags().DurationVar(&staleAfter, "stale-after", 30*time.Minute, "Sets when a pending settlement is reported as stale")
	startCmd.Flags().BoolVar(&autoSelect, "auto-select", false, "Selects winners automatically once listings end")
	mineCmd.Flags().Uint64Var(&mineCount, "count", 1, "Number of blocks to mine")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(pollHeightCmd)
	rootCmd.AddCommand(mineCmd)
}
