package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/mesh-router/model"
)

type recordingGraphMetrics struct {
	mu    sync.Mutex
	calls int
	last  GraphStats
}

func (r *recordingGraphMetrics) SetGraphStats(stats GraphStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = stats
}

func TestSharedGraphNotifiesSubscribers(t *testing.T) {
	sg := NewSharedGraph(ringGraph(t))

	var events []TopologyEvent
	unsubscribe := sg.Subscribe(func(ev TopologyEvent) {
		events = append(events, ev)
	})

	if err := sg.UpdateLink("SAT-1", "SAT-2", false, nil); err != nil {
		t.Fatalf("UpdateLink: %v", err)
	}
	if err := sg.UpdateNodePosition("SAT-1", 1, 2, 3); err != nil {
		t.Fatalf("UpdateNodePosition: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventLinkUpdated || events[0].NodeID != "SAT-1" || events[0].PeerID != "SAT-2" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Type != EventNodeMoved {
		t.Fatalf("unexpected second event %+v", events[1])
	}

	unsubscribe()
	if err := sg.AddNode(model.NewSatellite("SAT-5", "", 0, 0, 550, 1, 53)); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("unsubscribed callback still invoked")
	}
}

func TestSharedGraphFailedWriteDoesNotNotify(t *testing.T) {
	sg := NewSharedGraph(ringGraph(t))
	called := false
	sg.Subscribe(func(TopologyEvent) { called = true })

	if err := sg.UpdateLink("SAT-1", "SAT-3", true, nil); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("UpdateLink err = %v, want ErrLinkNotFound", err)
	}
	if called {
		t.Fatalf("subscriber notified for a failed write")
	}
}

func TestSharedGraphSubscriberCanReadBack(t *testing.T) {
	sg := NewSharedGraph(ringGraph(t))
	var seenActive *bool
	sg.Subscribe(func(ev TopologyEvent) {
		// Delivered outside the lock, so reading here must not deadlock.
		_ = sg.Read(func(g *ConstellationGraph) error {
			l, _ := g.LinkBetween(ev.NodeID, ev.PeerID)
			seenActive = &l.Active
			return nil
		})
	})
	if err := sg.UpdateLink("GS-1", "SAT-1", false, nil); err != nil {
		t.Fatalf("UpdateLink: %v", err)
	}
	if seenActive == nil || *seenActive {
		t.Fatalf("subscriber did not observe committed update")
	}
}

func TestSharedGraphRecordsStats(t *testing.T) {
	rec := &recordingGraphMetrics{}
	sg := NewSharedGraph(ringGraph(t), WithGraphMetrics(rec))
	if rec.calls != 1 || rec.last.TotalNodes != 6 {
		t.Fatalf("initial stats not recorded: %+v", rec)
	}
	if err := sg.UpdateLink("SAT-1", "SAT-2", false, nil); err != nil {
		t.Fatalf("UpdateLink: %v", err)
	}
	if rec.last.ActiveLinks != 5 {
		t.Fatalf("ActiveLinks gauge = %d, want 5", rec.last.ActiveLinks)
	}
}

func TestSharedGraphConcurrentReadersAndWriter(t *testing.T) {
	sg := NewSharedGraph(ringGraph(t))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			active := i%2 == 0
			_ = sg.UpdateLink("SAT-1", "SAT-2", active, nil)
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				err := sg.Read(func(g *ConstellationGraph) error {
					fwd, _ := g.directedLink(g.index["SAT-1"], g.index["SAT-2"])
					rev, _ := g.directedLink(g.index["SAT-2"], g.index["SAT-1"])
					if fwd.Active != rev.Active {
						return errors.New("torn link update observed")
					}
					return nil
				})
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := sg.FindPath("GS-1", "GS-2"); err != nil {
					t.Errorf("FindPath: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
