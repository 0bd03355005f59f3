package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type WatcherSuite struct {
	suite.Suite
	dir      string
	manifest string
}

func TestWatcherSuite(t *testing.T) {
	suite.Run(t, new(WatcherSuite))
}

func (s *WatcherSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.manifest = filepath.Join(s.dir, "index.json")
	s.Require().NoError(os.WriteFile(s.manifest, []byte("{}"), 0o644))
}

// waitFor polls cond until it holds or the deadline passes.
func (s *WatcherSuite) waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func (s *WatcherSuite) TestFiresOnManifestDeletion() {
	var fired atomic.Int32
	w, err := New(s.manifest, func() { fired.Add(1) })
	s.Require().NoError(err)
	s.Require().NoError(w.Start())
	defer w.Stop()

	s.Require().NoError(os.Remove(s.manifest))
	s.True(s.waitFor(func() bool { return fired.Load() > 0 }))
}

func (s *WatcherSuite) TestRewriteDoesNotFire() {
	var fired atomic.Int32
	w, err := New(s.manifest, func() { fired.Add(1) })
	s.Require().NoError(err)
	s.Require().NoError(w.Start())
	defer w.Stop()

	// Delete and immediately rewrite, as an atomic save would.
	s.Require().NoError(os.Remove(s.manifest))
	s.Require().NoError(os.WriteFile(s.manifest, []byte("{}"), 0o644))

	time.Sleep(600 * time.Millisecond)
	s.Zero(fired.Load())
}

func (s *WatcherSuite) TestStopIsIdempotent() {
	w, err := New(s.manifest, nil)
	s.Require().NoError(err)
	s.Require().NoError(w.Start())
	s.NoError(w.Stop())
	s.NoError(w.Stop())
}
