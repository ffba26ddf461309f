package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kurumiimari/sealdex"
	"github.com/kurumiimari/sealdex/api"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/pkg/errors"
)

func apiClient(ctx context.Context) (*api.Client, error) {
	var url string
	if serverURL == "" {
		url = fmt.Sprintf("http://localhost:%d", sealdex.Config.Network.APIPort)
	} else {
		url = serverURL
	}

	client := api.NewClient(url, apiKey)

	_, err := client.Status(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "connection refused") {
			return nil, errors.New("connection to sealdex refused - did you select the right network?")
		}
		return nil, err
	}

	return client, nil
}

func uint64Arg(in string, name string) (uint64, error) {
	out, err := strconv.ParseUint(in, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid %s", name)
	}
	return out, nil
}

// amountArg parses a token amount such as "12.5" using the decimals of
// chainID's token. Zero selects the reference chain.
func amountArg(in string, chainID uint64) (uint64, error) {
	info := sealdex.Config.Network.ReferenceChain()
	if chainID != 0 {
		info = sealdex.Config.Network.Chain(chainID)
		if info == nil {
			return 0, errors.Errorf("unknown chain %d", chainID)
		}
	}
	return chain.ToBaseUnits(in, info.TokenDecimals)
}

func formatAmount(amount uint64) string {
	return chain.FromBaseUnits(amount, sealdex.Config.Network.ReferenceChain().TokenDecimals)
}

func printJSON(in interface{}) error {
	out, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}
