package rpcnet

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"tenantledger/ledger"
)

// Dispatcher is the inbound side of the interconnect service: one
// CcGeneralIc call per connected peer, reading Requests and replying on the
// same stream via one dispatch goroutine per inbound stream.
type Dispatcher struct {
	nodeID string
	engine *ledger.Engine
	log    *logrus.Logger
}

// NewDispatcher wires a Dispatcher to the block engine it serves requests
// against.
func NewDispatcher(nodeID string, engine *ledger.Engine, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{nodeID: nodeID, engine: engine, log: log}
}

var _ InterconnectServer = (*Dispatcher)(nil)

// CcGeneralIc implements InterconnectServer.
func (d *Dispatcher) CcGeneralIc(stream Interconnect_CcGeneralIcServer) error {
	seen := make(map[string]bool)
	var mu sync.Mutex

	for {
		p, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if p.Version != PacketVersion {
			d.log.WithFields(logrus.Fields{"sender": p.Sender, "version": p.Version}).Warn("rejecting packet with incompatible version")
			continue
		}
		if p.Kind != PayloadRequest {
			// A reply with no local waiter arrived on the inbound side of a
			// bidirectional stream we didn't initiate a request on; nothing
			// to correlate here, so it's dropped.
			continue
		}

		mu.Lock()
		dup := seen[p.PacketID]
		seen[p.PacketID] = true
		mu.Unlock()
		if dup {
			d.log.WithFields(logrus.Fields{"sender": p.Sender, "packet_id": p.PacketID}).Debug("dropping duplicate packet_id")
			continue
		}

		reply := d.handle(p)
		if err := stream.Send(reply); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) handle(p *Packet) *Packet {
	reply := &Packet{
		Version:  PacketVersion,
		PacketID: p.PacketID + "-reply",
		Sender:   d.nodeID,
		Receiver: p.Sender,
		PrevID:   p.PacketID,
	}
	req, err := decodeRequest(p.RequestBody)
	if err != nil {
		reply.Kind = PayloadResultFailure
		reply.FailureError = "malformed request body"
		return reply
	}
	switch req.Method {
	case methodDeliverTx:
		if req.Tx == nil {
			reply.Kind = PayloadResultFailure
			reply.FailureError = "missing tx"
			return reply
		}
		if err := d.engine.HandlePeerRequest(req.Tx); err != nil {
			reply.Kind = PayloadResultFailure
			reply.FailureError = err.Error()
			return reply
		}
		reply.Kind = PayloadResultSuccess
		reply.SuccessData = "ok"
	case methodHeight:
		h, err := d.engine.LocalHeight()
		if err != nil {
			reply.Kind = PayloadResultFailure
			reply.FailureError = err.Error()
			return reply
		}
		b, _ := json.Marshal(heightResponse{Height: h})
		reply.Kind = PayloadResultSuccess
		reply.SuccessData = string(b)
	case methodBlocksFrom:
		blocks, err := d.engine.BlocksFrom(req.From)
		if err != nil {
			reply.Kind = PayloadResultFailure
			reply.FailureError = err.Error()
			return reply
		}
		b, _ := json.Marshal(blocksResponse{Blocks: blocks})
		reply.Kind = PayloadResultSuccess
		reply.SuccessData = string(b)
	default:
		reply.Kind = PayloadResultFailure
		reply.FailureError = "unknown method"
	}
	return reply
}
