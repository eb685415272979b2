// Package hyperliquid adapts the teacher's EIP-712/msgpack order-signing
// scheme (github.com/ethereum/go-ethereum/crypto +
// github.com/vmihailenco/msgpack/v5) to this engine's OrderIntent shape. It
// is the illustrative concrete signer.Builder wired for local/dev use;
// production deployments may swap in any other Builder without touching
// core code.
//
// Only the EOA signing path is implemented. A proxy-wallet scheme (signing
// on behalf of a vault address distinct from the signer's own address) is a
// documented extension point: Builder carries no notion of "scheme", so a
// proxy adapter can be added as a second implementation without changing
// anything upstream.
package hyperliquid

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	mathhex "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"

	"predictcore/pkg/exchange"
)

const verifyingContractHex = "0x0000000000000000000000000000000000000000"

// Builder signs order intents with a single EOA private key.
type Builder struct {
	privateKey *ecdsa.PrivateKey
	address    string
	isMainnet  bool
	nowFn      func() time.Time
}

// NewBuilder constructs a Builder from a hex-encoded private key. Private
// key material is read only from the environment by the caller; it is
// never logged.
func NewBuilder(privateKeyHex string, isMainnet bool) (*Builder, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if keyHex == "" {
		return nil, errors.New("signer/hyperliquid: empty private key")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("signer/hyperliquid: decode private key: %w", err)
	}
	return &Builder{
		privateKey: key,
		address:    strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()),
		isMainnet:  isMainnet,
		nowFn:      time.Now,
	}, nil
}

// Address implements signer.Builder.
func (b *Builder) Address() string {
	if b == nil {
		return ""
	}
	return b.address
}

// orderAction is the msgpack-encoded action envelope. Grouping "na" means
// orders are independent (no TP/SL bracket linkage).
type orderAction struct {
	Type     string       `msgpack:"type"`
	Orders   []wireOrder  `msgpack:"orders"`
	Grouping string       `msgpack:"grouping"`
}

type wireOrder struct {
	TokenID     string `msgpack:"a"`
	IsBuy       bool   `msgpack:"b"`
	Price       string `msgpack:"p"`
	Size        string `msgpack:"s"`
	ReduceOnly  bool   `msgpack:"r"`
	ClientID    string `msgpack:"c,omitempty"`
}

// Build implements signer.Builder: it wire-encodes the intent as a single
// order action, signs it via EIP-712 over the msgpack+nonce payload (the
// same "Agent" typed-data scheme the source exchange uses), and returns a
// SignedOrder ready for exchange.Client.PostOrder.
func (b *Builder) Build(ctx context.Context, intent exchange.OrderIntent) (*exchange.SignedOrder, error) {
	if b == nil || b.privateKey == nil {
		return nil, errors.New("signer/hyperliquid: builder not initialised")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	action := orderAction{
		Type:     "order",
		Grouping: "na",
		Orders: []wireOrder{{
			TokenID:    intent.TokenID,
			IsBuy:      intent.Side == exchange.SideBuy,
			Price:      intent.Price.String(),
			Size:       intent.Size.String(),
			ReduceOnly: intent.Side == exchange.SideSell,
			ClientID:   intent.ClientID,
		}},
	}

	nonce := b.nowFn().UnixMilli()
	digest, err := buildEIP712Digest(action, nonce, "", b.isMainnet)
	if err != nil {
		return nil, err
	}
	sig, err := b.sign(digest)
	if err != nil {
		return nil, err
	}

	envelope := signedEnvelope{
		Action:    action,
		Nonce:     nonce,
		Signature: *sig,
	}
	payload, err := msgpack.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("signer/hyperliquid: encode signed envelope: %w", err)
	}

	return &exchange.SignedOrder{
		Intent:    intent,
		Payload:   payload,
		Signature: append([]byte(nil), digest...),
	}, nil
}

type signedEnvelope struct {
	Action    orderAction `msgpack:"action"`
	Nonce     int64       `msgpack:"nonce"`
	Signature Signature   `msgpack:"signature"`
}

func (b *Builder) sign(message []byte) (*Signature, error) {
	if len(message) != 32 {
		return nil, fmt.Errorf("signer/hyperliquid: expected 32-byte digest, got %d bytes", len(message))
	}
	sigBytes, err := crypto.Sign(message, b.privateKey)
	if err != nil {
		return nil, fmt.Errorf("signer/hyperliquid: sign digest: %w", err)
	}
	return &Signature{
		R: "0x" + fmt.Sprintf("%064x", sigBytes[:32]),
		S: "0x" + fmt.Sprintf("%064x", sigBytes[32:64]),
		V: int(sigBytes[64]) + 27,
	}, nil
}

func buildEIP712Digest(action interface{}, nonce int64, vaultAddress string, isMainnet bool) ([]byte, error) {
	var buf bytes.Buffer
	encoder := msgpack.NewEncoder(&buf)
	encoder.UseCompactInts(true)
	if err := encoder.Encode(action); err != nil {
		return nil, fmt.Errorf("signer/hyperliquid: msgpack encode action: %w", err)
	}
	msgpackBytes := convertStr16ToStr8(buf.Bytes())

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], uint64(nonce))

	payload := make([]byte, 0, len(msgpackBytes)+1+common.AddressLength+len(nonceBytes))
	payload = append(payload, msgpackBytes...)
	payload = append(payload, nonceBytes[:]...)

	if vaultAddress == "" {
		payload = append(payload, 0x00)
	} else {
		if !common.IsHexAddress(vaultAddress) {
			return nil, fmt.Errorf("signer/hyperliquid: invalid vault address %q", vaultAddress)
		}
		payload = append(payload, 0x01)
		payload = append(payload, common.HexToAddress(vaultAddress).Bytes()...)
	}

	connectionID := crypto.Keccak256(payload)

	source := "a"
	if !isMainnet {
		source = "b"
	}

	domain := apitypes.TypedDataDomain{
		Name:              "Exchange",
		Version:           "1",
		ChainId:           mathhex.NewHexOrDecimal256(1337),
		VerifyingContract: verifyingContractHex,
	}
	message := map[string]interface{}{
		"source":       source,
		"connectionId": connectionID,
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain:      domain,
		Message:     message,
	}

	return typedDataHash(typedData)
}

func typedDataHash(td apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("signer/hyperliquid: hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("signer/hyperliquid: hash primary type: %w", err)
	}
	raw := make([]byte, 0, 2+len(domainSeparator)+len(messageHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)
	return crypto.Keccak256(raw), nil
}

// convertStr16ToStr8 downgrades msgpack str16 headers to str8 where the
// payload fits, matching the exact byte layout the exchange's Python/Rust
// SDKs produce (and therefore the layout its signature verifier expects).
func convertStr16ToStr8(data []byte) []byte {
	result := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		if data[i] == 0xda && i+2 < len(data) {
			length := int(data[i+1])<<8 | int(data[i+2])
			if length < 256 && i+3+length <= len(data) {
				result = append(result, 0xd9, byte(length))
				result = append(result, data[i+3:i+3+length]...)
				i += 3 + length
				continue
			}
		}
		result = append(result, data[i])
		i++
	}
	return result
}
