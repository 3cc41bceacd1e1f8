package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"flashsettle/core/events"
	"flashsettle/core/state"
	"flashsettle/native/bank"
	"flashsettle/native/flashloan"
	"flashsettle/native/flashloan/adapter"
	"flashsettle/native/flashloan/adapter/bucket"
	"flashsettle/native/flashloan/adapter/navi"
	"flashsettle/native/flashloan/adapter/scallop"
	"flashsettle/storage"
)

// Options selects the markets served by the built-in adapters.
type Options struct {
	NaviAssets     []string
	BucketAsset    string
	ScallopMarkets map[string]string
	Logger         *slog.Logger
}

// Node is the central controller, wiring all components together.
type Node struct {
	db         storage.Database
	state      *state.Manager
	ledger     *bank.Ledger
	dispatcher *flashloan.Dispatcher
	router     *flashloan.Router
	admin      *flashloan.Admin
	bucket     *bucket.Adapter

	emitMu   sync.RWMutex
	emitters []events.Emitter
}

func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := state.NewManager(db)
	ledger := bank.NewLedger(st)
	dispatcher := flashloan.NewDispatcher(st)

	n := &Node{
		db:         db,
		state:      st,
		ledger:     ledger,
		dispatcher: dispatcher,
		router:     flashloan.NewRouter(st, ledger, dispatcher, logger),
		admin:      flashloan.NewAdmin(st, logger),
	}
	installed := []adapter.Adapter{
		navi.New(ledger, st, opts.NaviAssets),
		scallop.New(ledger, st, opts.ScallopMarkets),
	}
	if opts.BucketAsset != "" {
		n.bucket = bucket.New(ledger, st, st, opts.BucketAsset)
		installed = append(installed, n.bucket)
	}
	for _, a := range installed {
		dispatcher.Install(a)
	}
	st.SetEmitter(events.EmitterFunc(n.broadcast))
	logger.Info("node ready", slog.Any("adapters", dispatcher.Installed()))
	return n, nil
}

func (n *Node) State() *state.Manager             { return n.state }
func (n *Node) Ledger() *bank.Ledger              { return n.ledger }
func (n *Node) Dispatcher() *flashloan.Dispatcher { return n.dispatcher }
func (n *Node) Router() *flashloan.Router         { return n.router }
func (n *Node) Admin() *flashloan.Admin           { return n.admin }
func (n *Node) Bucket() *bucket.Adapter           { return n.bucket }

// AddEmitter subscribes e to every committed event.
func (n *Node) AddEmitter(e events.Emitter) {
	if e == nil {
		return
	}
	n.emitMu.Lock()
	defer n.emitMu.Unlock()
	n.emitters = append(n.emitters, e)
}

func (n *Node) broadcast(evt events.Event) {
	n.emitMu.RLock()
	fanout := events.Multi(append([]events.Emitter(nil), n.emitters...))
	n.emitMu.RUnlock()
	fanout.Emit(evt)
}

// Balance reads addr's committed balance of asset.
func (n *Node) Balance(ctx context.Context, addr common.Address, asset string) (*uint256.Int, error) {
	var balance *uint256.Int
	err := n.state.View(ctx, func() error {
		var err error
		balance, err = n.ledger.Balance(addr, asset)
		return err
	})
	return balance, err
}

// Protocols lists the resolvable back-ends for asset.
func (n *Node) Protocols(ctx context.Context, asset string) ([]flashloan.ProtocolInfo, error) {
	var infos []flashloan.ProtocolInfo
	err := n.state.View(ctx, func() error {
		var err error
		infos, err = n.dispatcher.Protocols(asset)
		return err
	})
	return infos, err
}

func (n *Node) Close() error {
	return n.db.Close()
}
