package hyperliquid

// Signature is the (r, s, v) ECDSA triple the exchange's EIP-712 action
// envelope expects, hex-encoded.
type Signature struct {
	R string `msgpack:"r"`
	S string `msgpack:"s"`
	V int    `msgpack:"v"`
}
