package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var ErrInvalidPrincipal = errors.New("invalid principal")

// Principal is a checksummed EVM address identifying a listing owner,
// bidder, or payee.
type Principal string

func ParsePrincipal(in string) (Principal, error) {
	if !common.IsHexAddress(in) {
		return "", errors.Wrapf(ErrInvalidPrincipal, "%q", in)
	}
	return Principal(common.HexToAddress(in).Hex()), nil
}

func MustParsePrincipal(in string) Principal {
	p, err := ParsePrincipal(in)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Principal) Address() common.Address {
	return common.HexToAddress(string(p))
}

func (p Principal) Bytes() []byte {
	return p.Address().Bytes()
}

func (p Principal) String() string {
	return string(p)
}
