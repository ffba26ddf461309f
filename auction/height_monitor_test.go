package auction

import (
	"sync"
	"testing"
	"time"

	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/client"
	"github.com/kurumiimari/sealdex/testutil"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gopkg.in/tomb.v2"
)

// regressingChain reports whatever height it is told to, including lower
// ones.
type regressingChain struct {
	*client.DevChain
	height uint64
	mtx    sync.Mutex
}

func (r *regressingChain) set(height uint64) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.height = height
}

func (r *regressingChain) BlockHeight() (uint64, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.height, nil
}

func TestHeightMonitor_Poll(t *testing.T) {
	engine := testutil.NewEngine(t)
	oracle := &regressingChain{
		DevChain: client.NewDevChain(100, false),
		height:   20,
	}
	hm := NewHeightMonitor(new(tomb.Tomb), oracle, engine, time.Hour)
	sub := hm.Subscribe()

	height, err := hm.Poll()
	require.NoError(t, err)
	require.EqualValues(t, 20, height)
	require.EqualValues(t, 20, (<-sub).Height)

	oracle.set(15)
	height, err = hm.Poll()
	require.NoError(t, err)
	require.EqualValues(t, 20, height)
	require.EqualValues(t, 20, hm.LastHeight())
	select {
	case <-sub:
		t.Fatal("unexpected notification for a lower height")
	default:
	}

	oracle.set(25)
	_, err = hm.Poll()
	require.NoError(t, err)
	require.EqualValues(t, 25, (<-sub).Height)

	var checkpoints []*auctiondb.HeightCheckpoint
	require.NoError(t, engine.View(func(tx auctiondb.Transactor) error {
		var err error
		checkpoints, err = auctiondb.GetHeightCheckpoints(tx)
		return err
	}))
	require.Len(t, checkpoints, HeightMonitorCheckpointDepth)
	require.EqualValues(t, 25, checkpoints[0].Height)
	require.Equal(t, client.DevBlockHash(25), checkpoints[0].Hash)
	require.EqualValues(t, 16, checkpoints[len(checkpoints)-1].Height)
}

func TestHeightMonitor_ShortChain(t *testing.T) {
	engine := testutil.NewEngine(t)
	hm := NewHeightMonitor(new(tomb.Tomb), client.NewDevChain(3, false), engine, time.Hour)
	height, err := hm.Poll()
	require.NoError(t, err)
	require.EqualValues(t, 3, height)

	var checkpoints []*auctiondb.HeightCheckpoint
	require.NoError(t, engine.View(func(tx auctiondb.Transactor) error {
		var err error
		checkpoints, err = auctiondb.GetHeightCheckpoints(tx)
		return err
	}))
	require.Len(t, checkpoints, 4)
}

func TestHeightMonitor_RestoresFromCheckpoints(t *testing.T) {
	engine := testutil.NewEngine(t)
	oracle := &regressingChain{
		DevChain: client.NewDevChain(100, false),
		height:   40,
	}

	tmb := new(tomb.Tomb)
	hm := NewHeightMonitor(tmb, oracle, engine, time.Hour)
	require.NoError(t, hm.Start())
	require.Eventually(t, func() bool {
		return hm.LastHeight() == 40
	}, 5*time.Second, 10*time.Millisecond)
	tmb.Kill(nil)
	require.NoError(t, tmb.Wait())

	oracle.set(30)
	tmb = new(tomb.Tomb)
	restarted := NewHeightMonitor(tmb, oracle, engine, time.Hour)
	sub := restarted.Subscribe()
	require.NoError(t, restarted.Start())
	require.EqualValues(t, 40, restarted.LastHeight())
	select {
	case notif := <-sub:
		require.EqualValues(t, 40, notif.Height)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification for the restored height")
	}
	_, err := restarted.Poll()
	require.NoError(t, err)
	require.EqualValues(t, 40, restarted.LastHeight())
	tmb.Kill(nil)
	require.NoError(t, tmb.Wait())
}

// stalledChain blocks height reads until released.
type stalledChain struct {
	*client.DevChain
	entered chan struct{}
	release chan struct{}
}

func (s *stalledChain) BlockHeight() (uint64, error) {
	close(s.entered)
	<-s.release
	return s.DevChain.BlockHeight()
}

func newMonitoredCoordinator(t *testing.T, chainClient client.ChainClient) (*HeightMonitor, *Coordinator) {
	engine := testutil.NewEngine(t)
	dn, err := timelock.NewDevNetwork(testMnemonic)
	require.NoError(t, err)
	hm := NewHeightMonitor(new(tomb.Tomb), chainClient, engine, time.Hour)
	coord, err := NewCoordinator(engine, dn.Codec(), hm, nil, &Config{
		Network: chain.NetworkTestnet,
	})
	require.NoError(t, err)
	return hm, coord
}

func farListing() *CreateListingParams {
	return &CreateListingParams{
		Owner:        testutil.Alice,
		ItemName:     "vintage lamp",
		RevealHeight: 1_000_000,
		EndHeight:    2_000_000,
	}
}

func TestHeightMonitor_PollDuringCommands(t *testing.T) {
	hm, coord := newMonitoredCoordinator(t, client.NewDevChain(1, true))

	done := make(chan error, 1)
	go func() {
		var g errgroup.Group
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				if _, err := hm.Poll(); err != nil {
					return err
				}
			}
			return nil
		})
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				if _, err := coord.CreateListing(farListing()); err != nil {
					return err
				}
			}
			return nil
		})
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("polling and commands did not finish")
	}

	listings, err := coord.ListListings(&auctiondb.ListingFilter{Count: 500})
	require.NoError(t, err)
	require.Len(t, listings, 200)
	require.EqualValues(t, 201, hm.LastHeight())
}

func TestHeightMonitor_StalledOracle(t *testing.T) {
	stalled := &stalledChain{
		DevChain: client.NewDevChain(5, false),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	hm, coord := newMonitoredCoordinator(t, stalled)

	polled := make(chan error, 1)
	go func() {
		_, err := hm.Poll()
		polled <- err
	}()
	<-stalled.entered

	require.EqualValues(t, 0, hm.LastHeight())
	listing, err := coord.CreateListing(farListing())
	require.NoError(t, err)
	require.EqualValues(t, 0, listing.CreatedAtHeight)

	close(stalled.release)
	require.NoError(t, <-polled)
	require.EqualValues(t, 5, hm.LastHeight())
}
