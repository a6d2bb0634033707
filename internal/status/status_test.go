package status

import (
	"sync"
	"testing"
	"time"
)

func TestSnapshotStartsZero(t *testing.T) {
	r := NewReporter()
	snap := r.Snapshot()
	if !snap.LastCaptureTime.IsZero() || snap.LastError != "" || snap.RowsInCurrentDocument != 0 {
		t.Errorf("fresh reporter snapshot not zero: %+v", snap)
	}
}

func TestUpdatePreservesUntouchedFields(t *testing.T) {
	r := NewReporter()
	r.Update(func(s *Snapshot) {
		s.LastTarget = "desktop"
		s.RowsInCurrentDocument = 5
	})
	r.Update(func(s *Snapshot) {
		s.LastError = "boom"
	})

	snap := r.Snapshot()
	if snap.LastTarget != "desktop" || snap.RowsInCurrentDocument != 5 {
		t.Errorf("earlier fields lost: %+v", snap)
	}
	if snap.LastError != "boom" {
		t.Errorf("LastError = %q", snap.LastError)
	}
}

// TestConcurrentReadersNeverSeePartialUpdate hammers the reporter with
// writers that always set two fields in step, while readers check the pair
// is never observed out of sync.
func TestConcurrentReadersNeverSeePartialUpdate(t *testing.T) {
	r := NewReporter()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				n := i
				r.Update(func(s *Snapshot) {
					s.RowsInCurrentDocument = n
					s.LastError = ""
					if n%2 == 1 {
						s.LastError = "odd"
					}
				})
			}
		}()
	}

	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case <-deadline:
			close(stop)
			wg.Wait()
			return
		default:
		}
		snap := r.Snapshot()
		odd := snap.RowsInCurrentDocument%2 == 1
		if odd && snap.LastError != "odd" {
			t.Fatalf("torn snapshot: rows=%d error=%q", snap.RowsInCurrentDocument, snap.LastError)
		}
		if !odd && snap.LastError != "" {
			t.Fatalf("torn snapshot: rows=%d error=%q", snap.RowsInCurrentDocument, snap.LastError)
		}
	}
}
