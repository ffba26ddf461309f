package client

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc/v2"
)

type ChainRPCClient struct {
	url       string
	rpcClient jsonrpc.RPCClient
}

type blockRes struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

// DefaultOracleTimeout bounds every oracle request.
const DefaultOracleTimeout = 10 * time.Second

func NewChainRPCClient(url string, apiKey string) *ChainRPCClient {
	return NewChainRPCClientWithTimeout(url, apiKey, DefaultOracleTimeout)
}

func NewChainRPCClientWithTimeout(url string, apiKey string, timeout time.Duration) *ChainRPCClient {
	opts := &jsonrpc.RPCClientOpts{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
	if apiKey != "" {
		opts.CustomHeaders = map[string]string{
			"Authorization": "Bearer " + apiKey,
		}
	}

	return &ChainRPCClient{
		url:       url,
		rpcClient: jsonrpc.NewClientWithOpts(url, opts),
	}
}

func (c *ChainRPCClient) BlockHeight() (uint64, error) {
	var heightHex string
	if err := c.rpcClient.CallFor(&heightHex, "eth_blockNumber"); err != nil {
		return 0, errors.Wrap(err, "error getting block number")
	}
	height, err := hexutil.DecodeUint64(heightHex)
	if err != nil {
		return 0, errors.Wrap(err, "error decoding block number")
	}
	return height, nil
}

func (c *ChainRPCClient) BlockHashesBatch(start uint64, count int) ([]*BatchBlockHashRes, error) {
	reqs := make(jsonrpc.RPCRequests, count)
	for i := 0; i < count; i++ {
		reqs[i] = &jsonrpc.RPCRequest{
			Method: "eth_getBlockByNumber",
			Params: jsonrpc.Params(hexutil.EncodeUint64(start+uint64(i)), false),
			ID:     i,
		}
	}
	batchRes, err := c.rpcClient.CallBatch(reqs)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	out := make([]*BatchBlockHashRes, count)
	for i := range out {
		out[i] = &BatchBlockHashRes{
			Height: start + uint64(i),
			Error:  errors.New("missing batch response"),
		}
	}
	for _, bRes := range batchRes {
		if bRes.ID < 0 || bRes.ID >= count {
			continue
		}
		res := out[bRes.ID]
		if bRes.Error != nil {
			res.Error = bRes.Error
			continue
		}
		block := new(blockRes)
		if err := bRes.GetObject(block); err != nil {
			res.Error = errors.WithStack(err)
			continue
		}
		if block.Hash == "" {
			res.Error = errors.New("block not found")
			continue
		}
		res.Hash = block.Hash
		res.Error = nil
	}
	return out, nil
}
