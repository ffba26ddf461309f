package client

// ChainClient reads the reference chain's tip. Heights are block numbers;
// hashes are 0x-prefixed hex strings.
type ChainClient interface {
	BlockHeight() (uint64, error)
	BlockHashesBatch(start uint64, count int) ([]*BatchBlockHashRes, error)
}

type BatchBlockHashRes struct {
	Height uint64
	Hash   string
	Error  error
}
