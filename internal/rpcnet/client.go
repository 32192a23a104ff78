package rpcnet

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"tenantledger/ledger"
)

// waiter is the inflight entry for one outbound request: a buffered channel
// the read loop sends the correlated reply on. The channel is closed only
// when the stream disconnects; the PeerTimeout timer lives in sendAndAwait.
type waiter struct {
	reply chan *Packet
}

// PeerClient is one outbound connection to a peer node: dial-on-first-use,
// a reader/writer pair over one bidirectional stream, an inflight map
// correlating packet_id to waiters, and backoff-governed reconnection.
// Implements ledger.Peer.
type PeerClient struct {
	selfID  string
	peerID  string
	addr    string
	timeout time.Duration
	backoff *Backoff
	log     *logrus.Logger

	mu       sync.Mutex
	conn     *grpc.ClientConn
	stream   Interconnect_CcGeneralIcClient
	inflight map[string]*waiter
	cancel   context.CancelFunc
}

// NewPeerClient constructs a not-yet-connected client for one peer; the
// connection is established lazily on first Deliver/Height/BlocksFrom call.
func NewPeerClient(selfID, peerID, addr string, timeout time.Duration, log *logrus.Logger) *PeerClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PeerClient{
		selfID:   selfID,
		peerID:   peerID,
		addr:     addr,
		timeout:  timeout,
		backoff:  NewBackoff(0, 0),
		log:      log,
		inflight: make(map[string]*waiter),
	}
}

func (c *PeerClient) ID() string { return c.peerID }

// ensureConnected dials and starts the reader loop if not already
// connected, honoring this peer's backoff window.
func (c *PeerClient) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if !c.backoff.ReadyToConnect(c.peerID) {
		return ledger.Fail(ledger.KindPeerDisconnected, "rpcnet", "ensureConnected", "peer in backoff window", nil)
	}

	conn, err := grpc.NewClient(c.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		c.backoff.MarkDisconnected(c.peerID)
		return ledger.Fail(ledger.KindPeerDisconnected, "rpcnet", "ensureConnected", "dial peer", err)
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := NewInterconnectClient(conn).CcGeneralIc(streamCtx)
	if err != nil {
		cancel()
		conn.Close()
		c.backoff.MarkDisconnected(c.peerID)
		return ledger.Fail(ledger.KindPeerDisconnected, "rpcnet", "ensureConnected", "open stream", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.stream = stream
	c.cancel = cancel
	c.mu.Unlock()
	c.backoff.MarkConnected(c.peerID)

	go c.readLoop(stream)
	return nil
}

// readLoop dispatches inbound replies to their waiter. On stream failure it
// cancels all inflight waiters with PeerDisconnected.
func (c *PeerClient) readLoop(stream Interconnect_CcGeneralIcClient) {
	for {
		p, err := stream.Recv()
		if err != nil {
			c.onDisconnect()
			return
		}
		if p.Version != PacketVersion {
			c.log.WithFields(logrus.Fields{"peer": c.peerID, "version": p.Version}).Warn("incompatible peer packet version")
			continue
		}
		c.mu.Lock()
		w, ok := c.inflight[p.PrevID]
		if ok {
			delete(c.inflight, p.PrevID)
		}
		c.mu.Unlock()
		if !ok {
			c.log.WithFields(logrus.Fields{"peer": c.peerID, "packet_id": p.PacketID}).Debug("dropping reply with no matching inflight request")
			continue
		}
		w.reply <- p
	}
}

func (c *PeerClient) onDisconnect() {
	c.mu.Lock()
	c.stream = nil
	conn := c.conn
	c.conn = nil
	inflight := c.inflight
	c.inflight = make(map[string]*waiter)
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	for _, w := range inflight {
		close(w.reply)
	}
	c.backoff.MarkDisconnected(c.peerID)
}

// sendAndAwait registers a waiter, writes a Request packet, and blocks
// until a correlated reply arrives, ctx is done, or this client's timeout
// elapses.
func (c *PeerClient) sendAndAwait(ctx context.Context, body string) (*Packet, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	req := &Packet{
		Version:     PacketVersion,
		PacketID:    uuid.NewString(),
		Sender:      c.selfID,
		Receiver:    c.peerID,
		Kind:        PayloadRequest,
		RequestBody: body,
	}
	w := &waiter{reply: make(chan *Packet, 1)}
	c.mu.Lock()
	stream := c.stream
	if stream == nil {
		c.mu.Unlock()
		return nil, ledger.Fail(ledger.KindPeerDisconnected, "rpcnet", "sendAndAwait", "not connected", nil)
	}
	c.inflight[req.PacketID] = w
	c.mu.Unlock()

	if err := stream.Send(req); err != nil {
		c.mu.Lock()
		delete(c.inflight, req.PacketID)
		c.mu.Unlock()
		c.onDisconnect()
		return nil, ledger.Fail(ledger.KindPeerDisconnected, "rpcnet", "sendAndAwait", "send request", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case reply, ok := <-w.reply:
		if !ok {
			return nil, ledger.Fail(ledger.KindPeerDisconnected, "rpcnet", "sendAndAwait", "stream closed while awaiting reply", nil)
		}
		return reply, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.inflight, req.PacketID)
		c.mu.Unlock()
		return nil, ledger.Fail(ledger.KindPeerTimeout, "rpcnet", "sendAndAwait", "no reply within timeout", nil)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.inflight, req.PacketID)
		c.mu.Unlock()
		return nil, ledger.Fail(ledger.KindPeerTimeout, "rpcnet", "sendAndAwait", "caller canceled", ctx.Err())
	}
}

func (c *PeerClient) call(ctx context.Context, req rpcRequest) (*Packet, error) {
	reply, err := c.sendAndAwait(ctx, encodeRequest(req))
	if err != nil {
		return nil, err
	}
	if reply.Kind == PayloadResultFailure {
		return nil, ledger.Fail(ledger.KindPeerDisconnected, "rpcnet", "call", reply.FailureError, nil)
	}
	return reply, nil
}

// Deliver implements ledger.Peer: sends tx as a deliverTx Request and waits
// for ResultSuccess/ResultFailure.
func (c *PeerClient) Deliver(ctx context.Context, tx *ledger.Tx) error {
	_, err := c.call(ctx, rpcRequest{Method: methodDeliverTx, Tx: tx})
	return err
}

// Height implements ledger.Peer.
func (c *PeerClient) Height(ctx context.Context) (uint64, error) {
	reply, err := c.call(ctx, rpcRequest{Method: methodHeight})
	if err != nil {
		return 0, err
	}
	var resp heightResponse
	if err := json.Unmarshal([]byte(reply.SuccessData), &resp); err != nil {
		return 0, ledger.Fail(ledger.KindIncompatiblePeer, "rpcnet", "Height", "malformed height response", err)
	}
	return resp.Height, nil
}

// BlocksFrom implements ledger.Peer.
func (c *PeerClient) BlocksFrom(ctx context.Context, from uint64) ([]*ledger.Block, error) {
	reply, err := c.call(ctx, rpcRequest{Method: methodBlocksFrom, From: from})
	if err != nil {
		return nil, err
	}
	var resp blocksResponse
	if err := json.Unmarshal([]byte(reply.SuccessData), &resp); err != nil {
		return nil, ledger.Fail(ledger.KindIncompatiblePeer, "rpcnet", "BlocksFrom", "malformed blocks response", err)
	}
	return resp.Blocks, nil
}

// Close tears down the connection and cancels any inflight waiters.
func (c *PeerClient) Close() {
	c.onDisconnect()
}

// PeerRoster is a ledger.PeerSet over a fixed, statically configured set of
// PeerClients (the yaml.v3-loaded roster).
type PeerRoster struct {
	mu    sync.RWMutex
	peers []ledger.Peer
}

// NewPeerRoster wraps clients as a ledger.PeerSet.
func NewPeerRoster(clients []*PeerClient) *PeerRoster {
	peers := make([]ledger.Peer, len(clients))
	for i, c := range clients {
		peers[i] = c
	}
	return &PeerRoster{peers: peers}
}

func (r *PeerRoster) Peers() []ledger.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ledger.Peer, len(r.peers))
	copy(out, r.peers)
	return out
}
