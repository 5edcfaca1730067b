// Package types defines the shared vocabulary of the request pipeline.
//
// Order enums, tick sizes, the on-chain order shape and the handful of REST
// and WebSocket payloads the clients exchange with Polymarket live here. The
// package has no dependencies on internal packages, so any layer can import it.
package types

import (
	"encoding/json"
	"fmt"
	"math"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Code returns the uint8 the exchange contract uses for the side (BUY=0, SELL=1).
func (s Side) Code() uint8 {
	if s == SELL {
		return 1
	}
	return 0
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == BUY || s == SELL
}

// OrderType enumerates the supported order lifecycles.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Til-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeGTD OrderType = "GTD" // Good-Til-Date
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// SignatureType identifies the signing scheme for the CTF exchange contract.
type SignatureType int

const (
	SigEOA        SignatureType = 0 // externally-owned account (standard wallet)
	SigProxy      SignatureType = 1 // Polymarket proxy / Magic wallet
	SigGnosisSafe SignatureType = 2 // Gnosis Safe multisig
)

// IsProxy reports whether orders are funded from a wallet other than the signer.
func (s SignatureType) IsProxy() bool {
	return s == SigProxy || s == SigGnosisSafe
}

// TickSize is the price granularity of a market. Polymarket supports exactly
// four tick sizes; anything else is rejected at parse time.
type TickSize string

const (
	Tick01    TickSize = "0.1"
	Tick001   TickSize = "0.01"
	Tick0001  TickSize = "0.001"
	Tick00001 TickSize = "0.0001"
)

const validTickSizes = "0.1, 0.01, 0.001, or 0.0001"

// ParseTickSize validates a tick size string.
func ParseTickSize(s string) (TickSize, error) {
	switch t := TickSize(s); t {
	case Tick01, Tick001, Tick0001, Tick00001:
		return t, nil
	}
	return "", fmt.Errorf("invalid tick size %q: must be %s", s, validTickSizes)
}

// TickSizeFromFloat maps a numeric tick (as returned by /tick-size) onto the
// closed set.
func TickSizeFromFloat(v float64) (TickSize, error) {
	for _, t := range []TickSize{Tick01, Tick001, Tick0001, Tick00001} {
		if math.Abs(v-t.Float()) < 1e-12 {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid tick size %v: must be %s", v, validTickSizes)
}

// Decimals returns the number of decimal places a price may carry.
func (t TickSize) Decimals() int32 {
	switch t {
	case Tick01:
		return 1
	case Tick001:
		return 2
	case Tick0001:
		return 3
	case Tick00001:
		return 4
	default:
		return 2
	}
}

// Float returns the tick as a number.
func (t TickSize) Float() float64 {
	return math.Pow10(-int(t.Decimals()))
}

// UnmarshalText lets config files and JSON payloads carry tick sizes while
// keeping the set closed.
func (t *TickSize) UnmarshalText(b []byte) error {
	parsed, err := ParseTickSize(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// Order is the unsigned on-chain order. Every numeric field is a base-10
// string so 256-bit values survive untouched; they are parsed and range
// checked only when the order is hashed.
//
// For BUY:  maker gives MakerAmount USDC, receives TakerAmount tokens
// For SELL: maker gives MakerAmount tokens, receives TakerAmount USDC
type Order struct {
	Salt          json.Number   `json:"salt"` // sent as a JSON number
	Maker         string        `json:"maker"`
	Signer        string        `json:"signer"`
	Taker         string        `json:"taker"` // zero address = open order
	TokenID       string        `json:"tokenId"`
	MakerAmount   string        `json:"makerAmount"`
	TakerAmount   string        `json:"takerAmount"`
	Expiration    string        `json:"expiration"`
	Nonce         string        `json:"nonce"`
	FeeRateBps    string        `json:"feeRateBps"`
	Side          Side          `json:"side"`
	SignatureType SignatureType `json:"signatureType"`

	// NegRisk selects the verifying contract; it is never transmitted.
	NegRisk bool `json:"-"`
}

// SignedOrder is an Order plus its EIP-712 signature. Immutable once built.
type SignedOrder struct {
	Order
	Signature string `json:"signature"` // 0x-prefixed hex
}

// OrderPayload is the request body for POST /order.
type OrderPayload struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`     // API key of the order owner
	OrderType OrderType   `json:"orderType"` // GTC, FOK, GTD, FAK
	PostOnly  bool        `json:"postOnly"`
}

// OrderResponse is returned by POST /order.
type OrderResponse struct {
	Success            bool     `json:"success"`
	ErrorMsg           string   `json:"errorMsg"`
	OrderID            string   `json:"orderID"`
	Status             string   `json:"status"` // e.g. "live", "matched"
	TransactionsHashes []string `json:"transactionsHashes,omitempty"`
}

// OpenOrder represents a live resting order on the CLOB.
type OpenOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`   // condition ID
	AssetID      string `json:"asset_id"` // token ID
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	OrderType    string `json:"order_type"`
}

// CancelResponse is returned by DELETE /order and DELETE /cancel-all.
type CancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level. Price and Size are strings because
// the CLOB API returns them as strings to preserve decimal precision.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookResponse is the REST response from GET /book for a single token.
type BookResponse struct {
	Market       string       `json:"market"`
	AssetID      string       `json:"asset_id"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	Hash         string       `json:"hash"`
	Timestamp    string       `json:"timestamp"`
	MinOrderSize string       `json:"min_order_size"`
	TickSize     string       `json:"tick_size"`
	NegRisk      bool         `json:"neg_risk"`
}

// TickSizeResponse is returned by GET /tick-size. The tick arrives as a
// number or a numeric string depending on the deployment.
type TickSizeResponse struct {
	MinimumTickSize json.Number `json:"minimum_tick_size"`
}

// NegRiskResponse is returned by GET /neg-risk.
type NegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

// FeeRateResponse is returned by GET /fee-rate. Like the tick size, the rate
// may be quoted.
type FeeRateResponse struct {
	FeeRateBps json.Number `json:"feeRateBps"`
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket handshake
// ————————————————————————————————————————————————————————————————————————
// Only the subscription handshake is modelled; event payloads are forwarded
// raw to the caller.

// WSSubscribeMsg is the initial subscription message sent when connecting
// to a WebSocket channel. For the user channel, Auth must be provided.
type WSSubscribeMsg struct {
	AssetIDs []string `json:"assets_ids,omitempty"` // token IDs (market channel)
	Markets  []string `json:"markets,omitempty"`    // condition IDs (user channel)
	Auth     *WSAuth  `json:"auth,omitempty"`
	Type     string   `json:"type"` // "market" or "user"
}

// WSAuth carries the L2 credentials for the user channel.
type WSAuth struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// String keeps credentials out of logs and panics.
func (a WSAuth) String() string {
	return "WSAuth{ApiKey:<redacted> Secret:<redacted> Passphrase:<redacted>}"
}

// GoString is used by %#v.
func (a WSAuth) GoString() string {
	return a.String()
}

// WSUpdateMsg subscribes or unsubscribes after the connection is established.
type WSUpdateMsg struct {
	AssetIDs  []string `json:"assets_ids,omitempty"`
	Markets   []string `json:"markets,omitempty"`
	Operation string   `json:"operation"` // "subscribe" or "unsubscribe"
}

// WSMessage is a raw event from either channel, tagged by event_type.
type WSMessage struct {
	EventType string
	Data      json.RawMessage
}
