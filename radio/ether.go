package radio

import "sync"

// Ether is a shared simulated radio medium: every Radio attached via Join
// hears every other member's transmission, and each decides independently
// whether to accept it by matching the sender's TX address against its own
// enabled RX addresses — the same broadcast-then-filter behavior a real RF
// channel has, where address matching happens in each receiver's own
// hardware (RXMATCH), not in the channel itself. It replaces the
// point-to-point SimBackend wiring for tests and harnesses (package mesh)
// that need more than two nodes able to hear one another.
type Ether struct {
	mu      sync.Mutex
	members []*Radio
}

// NewEther creates an empty shared medium.
func NewEther() *Ether { return &Ether{} }

// Join attaches r to the medium and returns the Backend r should be
// constructed or re-bound with (see Radio.SetBackend).
func (e *Ether) Join(r *Radio) *EtherBackend {
	e.mu.Lock()
	e.members = append(e.members, r)
	e.mu.Unlock()
	return &EtherBackend{r: r, ether: e}
}

// transmit delivers sender's current payload to every other member whose
// enabled RX address matches sender's TX address, exactly as RXMATCH
// address filtering would on a real chip listening to a shared channel.
func (e *Ether) transmit(sender *Radio) {
	txAddr := sender.TxPhysicalAddress()
	payload := sender.Payload()

	e.mu.Lock()
	members := append([]*Radio(nil), e.members...)
	e.mu.Unlock()

	for _, r := range members {
		if r == sender {
			continue
		}
		for logical, addr := range r.EnabledRxAddresses() {
			if addr == txAddr {
				copy(r.Payload(), payload)
				r.NotifyRxDone(logical)
				break
			}
		}
	}
}

// EtherBackend is the Backend a Radio joined to an Ether drives its
// primitives through. RampUp and Disable are instantaneous, like
// SimBackend's; StartTx fans out through the Ether instead of to one fixed
// Peer.
type EtherBackend struct {
	r     *Radio
	ether *Ether
}

func (b *EtherBackend) RampUp(Mode) {}
func (b *EtherBackend) Disable()    {}
func (b *EtherBackend) StartRx()    {}
func (b *EtherBackend) StartTx()    { b.ether.transmit(b.r) }
