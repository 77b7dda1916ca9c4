package crawler

import "sync"

// Frontier holds the addresses known to a crawl: pending addresses waiting to
// be considered and the visited set of addresses already accepted for
// dispatch. Every method is safe for concurrent use; the mutex is the single
// point of entry to both stores.
type Frontier struct {
	mu sync.Mutex

	// pending is FIFO. Order is not semantically required, only liveness.
	pending []string

	// visited contains every accepted address. Addresses are never removed.
	visited map[string]struct{}

	// order records acceptance order and doubles as the result set.
	order []string

	// seed bypasses filter so a crawl always includes its start address.
	seed string

	// filter optionally rejects in-scope addresses (path patterns).
	filter AcceptFilter

	// maxPages caps the number of accepted addresses. 0 means unlimited.
	maxPages int
}

// FrontierStats is a point-in-time snapshot of a Frontier.
type FrontierStats struct {
	// Pending is the number of addresses waiting to be considered.
	Pending int

	// Visited is the number of accepted addresses.
	Visited int
}

// NewFrontier creates an empty Frontier without filters or limits.
func NewFrontier() *Frontier {
	return newFrontier(nil, 0)
}

func newFrontier(filter AcceptFilter, maxPages int) *Frontier {
	return &Frontier{
		pending:  make([]string, 0),
		visited:  make(map[string]struct{}),
		order:    make([]string, 0),
		filter:   filter,
		maxPages: maxPages,
	}
}

// Seed inserts the start address into pending unconditionally.
func (f *Frontier) Seed(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seed = address
	f.pending = append(f.pending, address)
}

// TryAccept atomically checks that address is in scope and not yet visited,
// and if so marks it visited and returns true. The caller that sees true owns
// the dispatch of that address; every other caller sees false.
//
// Addresses that fail HostKey are rejected.
func (f *Frontier) TryAccept(address, scopeKey string) bool {
	// HostKey is pure, so it runs outside the lock.
	key, err := HostKey(address)
	if err != nil || key != scopeKey {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.visited[address]; ok {
		return false
	}
	if f.maxPages > 0 && len(f.order) >= f.maxPages {
		return false
	}
	if f.filter != nil && address != f.seed && !f.filter(address) {
		return false
	}

	f.visited[address] = struct{}{}
	f.order = append(f.order, address)
	return true
}

// OfferDiscovered appends a batch of discovered addresses to pending.
// Filtering happens later, in TryAccept.
func (f *Frontier) OfferDiscovered(addresses []string) {
	if len(addresses) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending = append(f.pending, addresses...)
}

// TakePending removes and returns one pending address without blocking.
// ok is false when nothing is pending right now.
func (f *Frontier) TakePending() (address string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return "", false
	}

	address = f.pending[0]
	f.pending[0] = ""
	f.pending = f.pending[1:]
	return address, true
}

// Visited returns a copy of the accepted addresses in acceptance order.
func (f *Frontier) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Stats returns the current pending and visited counts.
func (f *Frontier) Stats() FrontierStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return FrontierStats{
		Pending: len(f.pending),
		Visited: len(f.order),
	}
}
