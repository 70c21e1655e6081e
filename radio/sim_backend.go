package radio

// SimBackend is an in-memory Backend used by tests and by cmd/meshnode when
// no physical radio is attached. RampUp and Disable return immediately (the
// simulated radio is always instantly ready); StartRx and StartTx are wired
// up by the caller via the Peer field to model a two-node link on a single
// process.
type SimBackend struct {
	r *Radio

	// Peer, if set, receives a copy of every transmitted payload: StartTx
	// copies it into the peer's packet buffer and calls the peer's
	// NotifyRxDone at once. Tests wire two SimBackends to each other's
	// Radio to exercise a full send/receive round trip without a real link.
	Peer *Radio
	// PeerLogicalAddress is the logical address StartTx passes to the
	// peer's NotifyRxDone as the matched one.
	PeerLogicalAddress uint8
}

// NewSimBackend creates a Backend bound to r. r.backend must be set to the
// result before use (see radio.New with Opts.Backend).
func NewSimBackend(r *Radio) *SimBackend {
	return &SimBackend{r: r}
}

func (b *SimBackend) RampUp(mode Mode) {}
func (b *SimBackend) Disable()         {}
func (b *SimBackend) StartRx()         {}

// StartTx simulates instantaneous air time: it copies the payload to the
// peer (if any) and immediately calls NotifyRxDone on it, then returns. The
// transmitting Radio's own event handler is not invoked.
func (b *SimBackend) StartTx() {
	if b.Peer == nil {
		return
	}
	src := b.r.Payload()
	dst := b.Peer.Payload()
	n := copy(dst, src)
	_ = n
	b.Peer.NotifyRxDone(b.PeerLogicalAddress)
}
