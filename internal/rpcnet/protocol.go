package rpcnet

import (
	"encoding/json"

	"tenantledger/ledger"
)

// method is the small closed set of RPC request kinds carried inside a
// Packet's Request.body (itself JSON, an opaque `body: string` on the
// wire). This is an application-level framing choice layered on top of
// the wire Packet, not part of the protobuf-equivalent schema itself.
type method string

const (
	methodDeliverTx   method = "deliverTx"
	methodHeight      method = "height"
	methodBlocksFrom  method = "blocksFrom"
)

type rpcRequest struct {
	Method method      `json:"method"`
	Tx     *ledger.Tx  `json:"tx,omitempty"`
	From   uint64      `json:"from,omitempty"`
}

type heightResponse struct {
	Height uint64 `json:"height"`
}

type blocksResponse struct {
	Blocks []*ledger.Block `json:"blocks"`
}

func encodeRequest(r rpcRequest) string {
	b, _ := json.Marshal(r)
	return string(b)
}

func decodeRequest(s string) (rpcRequest, error) {
	var r rpcRequest
	err := json.Unmarshal([]byte(s), &r)
	return r, err
}
