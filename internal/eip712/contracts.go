// Package eip712 builds and signs the two EIP-712 structures the CLOB accepts:
// trade orders under the "Polymarket CTF Exchange" domain and the ClobAuth
// challenge under "ClobAuthDomain".
package eip712

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"polygo/internal/apierr"
)

const (
	ChainPolygon uint64 = 137
	ChainAmoy    uint64 = 80002
)

// Contracts holds the verifying contracts deployed on one chain.
type Contracts struct {
	Exchange        common.Address
	NegRiskExchange common.Address
}

var contracts = map[uint64]Contracts{
	ChainPolygon: {
		Exchange:        common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
		NegRiskExchange: common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	},
	ChainAmoy: {
		Exchange:        common.HexToAddress("0xdFE02Eb6733538f8Ea35D585af8DE5958AD99E40"),
		NegRiskExchange: common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	},
}

// ContractsFor returns the deployment for chainID.
func ContractsFor(chainID uint64) (Contracts, error) {
	c, ok := contracts[chainID]
	if !ok {
		return Contracts{}, apierr.Crypto("chainId", fmt.Sprintf("unsupported chain id %d: must be 137 or 80002", chainID), nil)
	}
	return c, nil
}

// VerifyingContract picks the exchange for a regular or neg-risk market.
func (c Contracts) VerifyingContract(negRisk bool) common.Address {
	if negRisk {
		return c.NegRiskExchange
	}
	return c.Exchange
}
