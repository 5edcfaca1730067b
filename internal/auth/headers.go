package auth

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"polygo/internal/eip712"
)

// Request headers understood by the CLOB.
const (
	HeaderAddress    = "POLY_ADDRESS"
	HeaderSignature  = "POLY_SIGNATURE"
	HeaderTimestamp  = "POLY_TIMESTAMP"
	HeaderAPIKey     = "POLY_API_KEY"
	HeaderPassphrase = "POLY_PASSPHRASE"
	HeaderNonce      = "POLY_NONCE"
)

// L1Headers signs the ClobAuth challenge for timestamp and nonce and returns
// the key-management headers.
func L1Headers(w eip712.Wallet, chainID uint64, timestamp int64, nonce uint32) (map[string]string, error) {
	sig, err := eip712.SignClobAuth(w, chainID, timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign clob auth: %w", err)
	}

	return map[string]string{
		HeaderAddress:   w.Address().Hex(),
		HeaderSignature: sig,
		HeaderTimestamp: strconv.FormatInt(timestamp, 10),
		HeaderNonce:     strconv.FormatUint(uint64(nonce), 10),
	}, nil
}

// L2Headers signs "timestamp + METHOD + path + body" and returns the trading
// headers. The secret itself is never sent.
func L2Headers(address common.Address, creds Credentials, signer *Signer, timestamp int64, method, path, body string) map[string]string {
	ts := strconv.FormatInt(timestamp, 10)
	sig := signer.Sign(CreateMessage(ts, method, path, body))

	return map[string]string{
		HeaderAddress:    address.Hex(),
		HeaderSignature:  sig,
		HeaderTimestamp:  ts,
		HeaderAPIKey:     creds.ApiKey,
		HeaderPassphrase: creds.Passphrase,
	}
}
