package realtime

import "sync"

// Peer is one live client connection as seen by the room logic.
type Peer interface {
	ID() string
	Send(event string, payload any) error
}

type Directory struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

func NewDirectory() *Directory {
	return &Directory{peers: make(map[string]Peer)}
}

func (d *Directory) Add(p Peer) {
	d.mu.Lock()
	d.peers[p.ID()] = p
	d.mu.Unlock()
}

func (d *Directory) Remove(connID string) {
	d.mu.Lock()
	delete(d.peers, connID)
	d.mu.Unlock()
}

func (d *Directory) Get(connID string) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[connID]
	return p, ok
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}
