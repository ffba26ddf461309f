package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kurumiimari/sealdex/auction"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/client"
	"github.com/kurumiimari/sealdex/solver"
	"github.com/kurumiimari/sealdex/timelock"
	"github.com/pkg/errors"
	"gopkg.in/tomb.v2"
)

type Options struct {
	Network *chain.Network
	// Prefix is the network's data directory.
	Prefix       string
	Port         int
	APIKey       string
	OracleURL    string
	OracleAPIKey string
	PollInterval time.Duration
	// Dev runs the chain oracle, decryption network and solver in-process.
	Dev bool
	// DevMnemonic seeds the decryption network's height keys and
	// attestation key.
	DevMnemonic string
	StaleAfter  time.Duration
	AutoSelect  bool
}

// Services holds everything Start builds, for callers that serve the API
// themselves.
type Services struct {
	Engine  *auctiondb.Engine
	Monitor *auction.HeightMonitor
	Node    *Node
	Handler http.Handler
}

// NewServices opens storage and builds the node. Height monitoring is not
// started.
func NewServices(tmb *tomb.Tomb, opts *Options) (*Services, error) {
	if opts.DevMnemonic == "" {
		return nil, errors.New("a decryption network mnemonic is required")
	}
	decryption, err := timelock.NewDevNetwork(opts.DevMnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "error opening decryption network")
	}

	engine, err := auctiondb.NewEngine(opts.Prefix)
	if err != nil {
		return nil, err
	}
	if err := auctiondb.MigrateDB(engine); err != nil {
		return nil, err
	}

	var chainClient client.ChainClient
	var dev *DevServices
	var gateway auction.SolverGateway
	if opts.Dev {
		var tip uint64
		err = engine.View(func(tx auctiondb.Transactor) error {
			var err error
			tip, err = auctiondb.GetTipHeight(tx)
			return err
		})
		if err != nil {
			return nil, errors.Wrap(err, "error reading restored height")
		}
		if tip < 1 {
			tip = 1
		}
		devChain := client.NewDevChain(tip, false)
		devSolver := solver.NewDevSolver()
		dev = &DevServices{
			Chain:   devChain,
			Network: decryption,
			Solver:  devSolver,
		}
		chainClient = devChain
		gateway = devSolver
	} else {
		oracleURL := opts.OracleURL
		if oracleURL == "" {
			oracleURL = fmt.Sprintf("http://localhost:%d", opts.Network.OracleRPCPort)
		}
		chainClient = client.NewChainRPCClient(oracleURL, opts.OracleAPIKey)
	}

	hm := auction.NewHeightMonitor(tmb, chainClient, engine, opts.PollInterval)
	coord, err := auction.NewCoordinator(engine, decryption.Codec(), hm, gateway, &auction.Config{
		Network:           opts.Network,
		StaleAfter:        opts.StaleAfter,
		AutoSelectWinners: opts.AutoSelect,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating coordinator")
	}

	node := NewNode(tmb, opts.Network, hm, coord, dev)
	return &Services{
		Engine:  engine,
		Monitor: hm,
		Node:    node,
		Handler: NewAPI(opts.Network, node, opts.APIKey),
	}, nil
}

func Start(tmb *tomb.Tomb, opts *Options) error {
	svcs, err := NewServices(tmb, opts)
	if err != nil {
		return err
	}
	defer svcs.Engine.Close()

	if err := svcs.Node.Start(); err != nil {
		return errors.Wrap(err, "error starting node")
	}

	// start the height monitor after the node to make sure that
	// subscribers are all set
	if err := svcs.Monitor.Start(); err != nil {
		return errors.Wrap(err, "error starting height monitor")
	}

	port := opts.Port
	if port == 0 {
		port = opts.Network.APIPort
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           svcs.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tmb.Go(func() error {
		apiLogger.Info("starting HTTP server", "port", port, "dev", opts.Dev)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "error starting HTTP server")
		}
		return nil
	})

	apiLogger.Info("started sealdex", "network", opts.Network.Name)
	<-tmb.Dying()
	srv.Close()
	apiLogger.Info("shut down sealdex")
	return tmb.Err()
}
