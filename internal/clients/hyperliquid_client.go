package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

const (
	hyperliquidMainnetURL = "https://api.hyperliquid.xyz"
	hyperliquidTestnetURL = "https://api.hyperliquid-testnet.xyz"
)

type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
}

// NewHyperliquidClient builds an exchange handle from a wallet private key.
// Hyperliquid accounts carry the key hex in the secret credential slot.
func NewHyperliquidClient(ctx context.Context, privateKeyHex string, testnet bool) (*HyperliquidClient, error) {
	key := privateKeyHex
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, err
	}

	pub := privateKey.Public()
	pubECDSA, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}
	accountAddr := crypto.PubkeyToAddress(*pubECDSA).Hex()

	baseURL := hyperliquidMainnetURL
	if testnet {
		baseURL = hyperliquidTestnetURL
	}

	// Info and SpotMeta are fetched lazily by the SDK.
	ex := hyperliquid.NewExchange(
		ctx,
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr}, nil
}

func (c *HyperliquidClient) Exchange() *hyperliquid.Exchange { return c.exchange }
func (c *HyperliquidClient) AccountAddress() string          { return c.accountAddr }
