package timelock

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const V1EnvelopeFileMagic = "SEALDEX_ENVELOPE:1.0.0"

var ErrMalformedEnvelopeFile = errors.New("mal-formed envelope file")

// EnvelopeFile is a sealed bid saved by `bid seal` for later submission.
// It keeps the cleartext so the bidder can audit what they sealed.
type EnvelopeFile struct {
	ListingID uint64    `json:"listing_id"`
	Amount    uint64    `json:"amount"`
	Envelope  *Envelope `json:"envelope"`
}

func ReadEnvelopeFile(r io.Reader) (*EnvelopeFile, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil {
		return nil, errors.WithStack(ErrMalformedEnvelopeFile)
	}

	if strings.TrimSpace(header) != V1EnvelopeFileMagic {
		return nil, errors.Wrap(ErrMalformedEnvelopeFile, "invalid envelope header")
	}

	dec := json.NewDecoder(io.LimitReader(br, 1024*1024))
	f := new(EnvelopeFile)
	if err := dec.Decode(f); err != nil {
		return nil, errors.Wrap(ErrMalformedEnvelopeFile, err.Error())
	}
	if f.Envelope == nil {
		return nil, errors.Wrap(ErrMalformedEnvelopeFile, "missing envelope")
	}
	return f, nil
}

func WriteEnvelopeFile(f *EnvelopeFile, w io.Writer) error {
	if _, err := w.Write([]byte(V1EnvelopeFileMagic + "\n")); err != nil {
		return errors.WithStack(err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(f))
}
