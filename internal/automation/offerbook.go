package automation

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/intercomswap/swap-core/internal/model"
)

// LocalOffer is one maker offer this peer will auto-quote RFQs against.
// Its shape mirrors model.SvcAnnounceBody because the same data is what
// the autopost scheduler (C11) broadcasts via the "offer" tool — the
// automation loop just needs to know it locally to answer RFQs.
type LocalOffer struct {
	OfferID       string            `json:"offer_id"`
	Lines         []model.OfferLine `json:"lines"`
	ExpiresAtUnix int64             `json:"expires_at_unix"`
	RFQChannels   []string          `json:"rfq_channels,omitempty"`
}

// LoadOfferBook reads a JSON array of LocalOffer from path. An empty path
// is valid and yields no offers — a peer can run taker-only.
func LoadOfferBook(path string) ([]LocalOffer, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("automation: read offer book %s: %w", path, err)
	}
	var offers []LocalOffer
	if err := json.Unmarshal(raw, &offers); err != nil {
		return nil, fmt.Errorf("automation: parse offer book %s: %w", path, err)
	}
	return offers, nil
}

// allowsChannel reports whether o's rfq_channels restriction (if any)
// permits an RFQ arriving on channel.
func (o LocalOffer) allowsChannel(channel string) bool {
	if len(o.RFQChannels) == 0 {
		return true
	}
	for _, c := range o.RFQChannels {
		if c == channel {
			return true
		}
	}
	return false
}
