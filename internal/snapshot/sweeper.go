package snapshot

import (
	"context"
	"log"
	"sync"
	"time"
)

// Expirer is a store whose rows outlive their TTL until something reclaims
// them. Redis expires keys natively; SQLite needs the sweep.
type Expirer interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper periodically reclaims expired snapshot rows.
type Sweeper struct {
	store    Expirer
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewSweeper(store Expirer, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("🧹 Snapshot sweeper started (interval: %v)", s.interval)
}

func (s *Sweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
	log.Println("🧹 Snapshot sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reclaimed, err := s.store.Sweep(ctx)
	if err != nil {
		log.Printf("Sweep failed: %v", err)
		return
	}
	if reclaimed > 0 {
		log.Printf("🧹 Reclaimed %d expired snapshots", reclaimed)
	}
}
