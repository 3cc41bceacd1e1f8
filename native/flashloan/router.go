package flashloan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	flasherrors "flashsettle/core/errors"
	"flashsettle/core/events"
	"flashsettle/native/bank"
	nativecommon "flashsettle/native/common"
	"flashsettle/native/flashloan/adapter"
	"flashsettle/observability/metrics"
)

// Recipient is the caller-supplied logic run while the loan is outstanding.
// It receives the borrowed funds and must return a coin of the same asset
// worth at least principal plus both fees.
type Recipient interface {
	Execute(ctx context.Context, funds bank.Coin, payload []byte) (bank.Coin, error)
}

// RecipientFunc adapts a function to the Recipient interface.
type RecipientFunc func(ctx context.Context, funds bank.Coin, payload []byte) (bank.Coin, error)

func (f RecipientFunc) Execute(ctx context.Context, funds bank.Coin, payload []byte) (bank.Coin, error) {
	return f(ctx, funds, payload)
}

// Request describes one flash loan.
type Request struct {
	Protocol uint64
	Asset    string
	Amount   *uint256.Int
	// Beneficiary receives whatever the callback returns beyond the total due.
	Beneficiary common.Address
	Callback    Recipient
	Payload     []byte
}

// Quote is the fee breakdown for borrowing Amount from Protocol.
type Quote struct {
	Protocol       uint64
	Amount         *uint256.Int
	ProtocolFeeBps uint64
	ServiceFeeBps  uint64
	ProtocolFee    *uint256.Int
	ServiceFee     *uint256.Int
	TotalRepayment *uint256.Int
}

// Settlement is the committed outcome of Execute.
type Settlement struct {
	Quote
	Asset       string
	Beneficiary common.Address
	Remainder   *uint256.Int
}

// Router executes flash loans as single atomic units: borrow, run the
// callback, settle with the back-end, pay the service fee and hand the excess
// to the beneficiary. Any failure undoes every step.
type Router struct {
	state      unitState
	store      *Store
	ledger     *bank.Ledger
	dispatcher *Dispatcher
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *metrics.FlashMetrics
	now        func() time.Time
}

func NewRouter(st unitState, ledger *bank.Ledger, dispatcher *Dispatcher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		state:      st,
		store:      NewStore(st),
		ledger:     ledger,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "flash-router")),
		tracer:     otel.Tracer("flashsettle/flashloan"),
		metrics:    metrics.Flash(),
		now:        time.Now,
	}
}

// Dispatcher exposes the router's dispatcher.
func (r *Router) Dispatcher() *Dispatcher { return r.dispatcher }

// Execute runs req and returns the committed settlement.
func (r *Router) Execute(ctx context.Context, req Request) (*Settlement, error) {
	start := r.now()
	ctx, span := r.tracer.Start(ctx, "flash.execute",
		trace.WithAttributes(
			attribute.Int64("flash.protocol", int64(req.Protocol)),
			attribute.String("flash.asset", req.Asset),
		))
	defer span.End()

	var settlement *Settlement
	err := r.state.Atomic(ctx, func(ctx context.Context) error {
		var err error
		settlement, err = r.execute(ctx, req)
		if err != nil {
			return err
		}
		elapsed := r.now().Sub(start)
		settled := settlement
		r.state.OnCommit(func() { r.observeSettled(settled, elapsed) })
		return nil
	})
	if err != nil {
		kind := flasherrors.Kind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.ObserveAborted(req.Protocol, kind, r.now().Sub(start))
		r.logger.Warn("flash loan aborted",
			slog.Uint64("protocol", req.Protocol),
			slog.String("asset", req.Asset),
			slog.String("amount", decimal(req.Amount)),
			slog.String("reason", kind),
			slog.Any("error", err))
		return nil, err
	}
	span.SetAttributes(attribute.String("flash.service_fee", settlement.ServiceFee.Dec()))
	span.SetStatus(codes.Ok, "settled")
	return settlement, nil
}

// observeSettled runs once the loan's outermost unit has committed.
func (r *Router) observeSettled(s *Settlement, elapsed time.Duration) {
	r.metrics.ObserveSettled(s.Protocol, s.Amount.Float64(), s.ServiceFee.Float64(), elapsed)
	r.logger.Info("flash loan settled",
		slog.Uint64("protocol", s.Protocol),
		slog.String("asset", s.Asset),
		slog.String("amount", s.Amount.Dec()),
		slog.String("total_repayment", s.TotalRepayment.Dec()),
		slog.Duration("elapsed", elapsed))
}

func (r *Router) execute(ctx context.Context, req Request) (*Settlement, error) {
	cfg, err := r.store.Config()
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(cfg, moduleName); err != nil {
		return nil, err
	}
	if req.Amount == nil || req.Amount.IsZero() {
		return nil, flasherrors.ErrAmountTooLow
	}
	asset := bank.NormalizeAsset(req.Asset)
	if !cfg.IsAllowed(asset) {
		return nil, fmt.Errorf("%w: %s", flasherrors.ErrUnallowedAsset, asset)
	}
	if req.Callback == nil {
		return nil, fmt.Errorf("flashloan: callback required")
	}

	quote, err := r.quote(cfg, req.Protocol, req.Amount)
	if err != nil {
		return nil, err
	}

	funds, receipt, err := r.dispatcher.Borrow(req.Protocol, asset, quote.Amount)
	if err != nil {
		return nil, err
	}
	repayment, err := req.Callback.Execute(ctx, funds, req.Payload)
	if err != nil {
		return nil, err
	}
	remainder, err := r.dispatcher.Settle(req.Protocol, receipt, repayment)
	if err != nil {
		return nil, err
	}
	if left := remainder.Value(); left.Lt(quote.ServiceFee) {
		return nil, fmt.Errorf("%w: %s left after protocol repayment, service fee %s",
			flasherrors.ErrInsufficientRepayment, left.Dec(), quote.ServiceFee.Dec())
	}

	fee, err := remainder.Split(quote.ServiceFee)
	if err != nil {
		return nil, err
	}
	if err := r.ledger.Deposit(cfg.Treasury, fee); err != nil {
		return nil, err
	}
	excess := remainder.Value()
	if err := r.ledger.Deposit(req.Beneficiary, remainder); err != nil {
		return nil, err
	}

	r.state.Emit(events.FlashLoanSettled{
		BackendID:      req.Protocol,
		Amount:         quote.Amount,
		ProtocolFee:    quote.ProtocolFee,
		ServiceFee:     quote.ServiceFee,
		TotalRepayment: quote.TotalRepayment,
	})
	return &Settlement{
		Quote:       *quote,
		Asset:       asset,
		Beneficiary: req.Beneficiary,
		Remainder:   excess,
	}, nil
}

// Quote prices a loan without touching state.
func (r *Router) Quote(ctx context.Context, protocol uint64, amount *uint256.Int) (*Quote, error) {
	var quote *Quote
	err := r.state.View(ctx, func() error {
		cfg, err := r.store.Config()
		if err != nil {
			return err
		}
		quote, err = r.quote(cfg, protocol, amount)
		return err
	})
	return quote, err
}

func (r *Router) quote(cfg *Config, protocol uint64, amount *uint256.Int) (*Quote, error) {
	if amount == nil {
		amount = new(uint256.Int)
	}
	protocolBps, err := r.dispatcher.FeeRate(protocol)
	if err != nil {
		return nil, err
	}
	protocolFee, err := adapter.CalculateFee(amount, protocolBps)
	if err != nil {
		return nil, err
	}
	serviceFee, err := adapter.CalculateFee(amount, cfg.ServiceFeeBps)
	if err != nil {
		return nil, err
	}
	total, err := adapter.Sum(amount, protocolFee, serviceFee)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Protocol:       protocol,
		Amount:         new(uint256.Int).Set(amount),
		ProtocolFeeBps: protocolBps,
		ServiceFeeBps:  cfg.ServiceFeeBps,
		ProtocolFee:    protocolFee,
		ServiceFee:     serviceFee,
		TotalRepayment: total,
	}, nil
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
