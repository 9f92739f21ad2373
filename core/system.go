package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najoast/catalog/ledger"
)

// Option configures a System.
type Option func(*System)

// WithFees sets the initial fee schedule.
func WithFees(f ledger.FeeSchedule) Option {
	return func(s *System) { s.fees.Store(&f) }
}

// WithLogger sets the logger used by the runtime and handed to handlers.
func WithLogger(l *zap.Logger) Option {
	return func(s *System) { s.log = l }
}

// WithActorOptions sets the options of every spawned actor.
func WithActorOptions(o ActorOptions) Option {
	return func(s *System) { s.actorOpts = o }
}

// WithObserver registers an observer at construction.
func WithObserver(o Observer) Option {
	return func(s *System) { s.observers = append(s.observers, o) }
}

// System owns every actor, routes messages between them and keeps the
// books: minted supply, collected fees and in-flight operations.
type System struct {
	router    Router
	book      *AddressBook
	log       *zap.Logger
	actorOpts ActorOptions

	fees atomic.Pointer[ledger.FeeSchedule]
	sink ledger.FeeSink

	// minted is every coin ever created by opening a wallet.
	minted atomic.Int64

	wmu sync.Mutex

	// gate is held for reading by every submission and for writing by
	// Checkpoint.
	gate sync.RWMutex

	tmu       sync.RWMutex
	templates map[ledger.TemplateID]Factory

	omu       sync.RWMutex
	observers []Observer

	lt    atomic.Uint64
	msgID atomic.Uint64

	// pmu guards pending, idle and ops.
	pmu     sync.Mutex
	pending int
	idle    chan struct{}
	ops     map[uuid.UUID]*Operation

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
}

// NewSystem creates an empty ledger with the wallet template registered.
func NewSystem(opts ...Option) *System {
	ctx, cancel := context.WithCancel(context.Background())

	s := &System{
		router:    NewRouter(),
		book:      NewAddressBook(),
		log:       zap.NewNop(),
		actorOpts: DefaultActorOptions(),
		templates: make(map[ledger.TemplateID]Factory),
		idle:      make(chan struct{}),
		ops:       make(map[uuid.UUID]*Operation),
		ctx:       ctx,
		cancel:    cancel,
	}
	close(s.idle)
	def := ledger.DefaultFees()
	s.fees.Store(&def)

	for _, opt := range opts {
		opt(s)
	}
	s.templates[WalletTemplate] = newWalletHandler
	return s
}

// RegisterTemplate makes a template deployable.
func (s *System) RegisterTemplate(id ledger.TemplateID, f Factory) error {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if _, exists := s.templates[id]; exists {
		return fmt.Errorf("template %q already registered", id)
	}
	s.templates[id] = f
	return nil
}

func (s *System) factory(id ledger.TemplateID) (Factory, error) {
	s.tmu.RLock()
	defer s.tmu.RUnlock()
	f, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}
	return f, nil
}

// AddObserver registers an observer for every later transaction.
func (s *System) AddObserver(o Observer) {
	s.omu.Lock()
	defer s.omu.Unlock()
	s.observers = append(s.observers, o)
}

// Fees returns the fee schedule in force.
func (s *System) Fees() ledger.FeeSchedule {
	return *s.fees.Load()
}

// SetFees replaces the fee schedule for transactions that start afterwards.
func (s *System) SetFees(f ledger.FeeSchedule) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.fees.Store(&f)
	s.log.Info("fee schedule updated", zap.Stringer("compute_fee", f.ComputeFee), zap.Stringer("forward_fee", f.ForwardFee))
	return nil
}

// Book returns the address book used to label addresses in traces.
func (s *System) Book() *AddressBook {
	return s.book
}

// Logger returns the runtime logger.
func (s *System) Logger() *zap.Logger {
	return s.log
}

// FeesCollected returns every fee charged so far.
func (s *System) FeesCollected() ledger.Coins {
	return s.sink.Total()
}

// Minted returns the total supply created by opening wallets.
func (s *System) Minted() ledger.Coins {
	return ledger.Coins(s.minted.Load())
}

// Supply sums every balance and the fee sink. Once settled it equals Minted.
func (s *System) Supply() ledger.Coins {
	total := s.sink.Total()
	for _, addr := range s.router.List() {
		if a, ok := s.router.Lookup(addr); ok {
			total += a.Balance()
		}
	}
	return total
}

// BalanceOf returns the balance at addr, or false if no actor lives there.
func (s *System) BalanceOf(addr ledger.Address) (ledger.Coins, bool) {
	a, ok := s.router.Lookup(addr)
	if !ok {
		return 0, false
	}
	return a.Balance(), true
}

// Exists reports whether an actor has been deployed at addr.
func (s *System) Exists(addr ledger.Address) bool {
	_, ok := s.router.Lookup(addr)
	return ok
}

// TemplateOf returns the template the actor at addr was deployed from.
func (s *System) TemplateOf(addr ledger.Address) (ledger.TemplateID, bool) {
	a, ok := s.router.Lookup(addr)
	if !ok {
		return "", false
	}
	return a.Init().Template, true
}

// Get runs a get-method on the actor at addr.
func (s *System) Get(ctx context.Context, addr ledger.Address, method string, args ...any) (any, error) {
	a, ok := s.router.Lookup(addr)
	if !ok {
		return nil, fmt.Errorf("get %s on %s: %w", method, addr.Short(), ErrAccountNotFound)
	}
	reply := make(chan queryResult, 1)
	if err := a.enqueue(envelope{query: &query{method: method, args: args, reply: reply}}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settle blocks until no message is in flight anywhere in the system.
func (s *System) Settle(ctx context.Context) error {
	s.pmu.Lock()
	idle := s.idle
	s.pmu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns statistics for all Actors.
func (s *System) Stats() []ActorStats {
	var stats []ActorStats

	for _, addr := range s.router.List() {
		if actor, exists := s.router.Lookup(addr); exists {
			stats = append(stats, actor.Stats())
		}
	}

	return stats
}

// Shutdown gracefully stops all Actors in the system.
func (s *System) Shutdown(ctx context.Context) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, addr := range s.router.List() {
			if actor, exists := s.router.Lookup(addr); exists {
				if err := actor.Stop(); err != nil {
					s.log.Warn("stop actor", zap.String("actor", addr.Short()), zap.Error(err))
				}
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit starts an operation with a message from an external account.
func (s *System) submit(from ledger.Address, to ledger.Address, value ledger.Coins, body Body, init *ledger.StateInit) *Operation {
	fees := s.Fees()
	op := newOperation(from, to, body)
	op.SubmitFee = fees.ForwardFee

	s.pmu.Lock()
	s.ops[op.ID] = op
	s.pmu.Unlock()

	s.forEachObserver(func(o Observer) {
		if oo, ok := o.(OperationObserver); ok {
			oo.OnOperationStart(op)
		}
	})

	s.sink.Collect(fees.ForwardFee)
	s.route(s.newMessage(op.ID, from, to, value-fees.ForwardFee, body, init, true))
	return op
}

func (s *System) newMessage(op uuid.UUID, from, to ledger.Address, value ledger.Coins, body Body, init *ledger.StateInit, bounce bool) *Message {
	return &Message{
		ID:         s.msgID.Add(1),
		Operation:  op,
		From:       from,
		To:         to,
		Value:      value,
		Body:       body,
		Init:       init,
		Bounceable: bounce,
		CreatedAt:  time.Now(),
	}
}

func (s *System) newTransaction(msg *Message, template ledger.TemplateID) *Transaction {
	return &Transaction{
		LT:        s.lt.Add(1),
		Operation: msg.Operation,
		MessageID: msg.ID,
		From:      msg.From,
		To:        msg.To,
		Template:  template,
		Value:     msg.Value,
		Op:        msg.OpName(),
		OpCode:    msg.OpCode(),
		Body:      msg.Body,
		Bounced:   msg.Bounced,
		StartedAt: time.Now(),
	}
}

// route delivers msg, deploying the recipient first if msg carries a
// matching StateInit.
func (s *System) route(msg *Message) {
	s.track(msg)

	target, ok := s.router.Lookup(msg.To)
	if !ok {
		var err error
		target, err = s.deploy(msg)
		if err != nil {
			s.undeliverable(msg, err)
			s.release(msg)
			return
		}
	}

	if err := target.enqueue(envelope{msg: msg}); err != nil {
		s.log.Warn("message dropped", zap.String("to", msg.To.Short()), zap.Error(err))
		s.drop(msg)
	}
}

// deploy spawns the actor msg.Init describes. Concurrent deploys of one
// address resolve to the same actor.
func (s *System) deploy(msg *Message) (Actor, error) {
	if msg.Init == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, msg.To.Short())
	}
	if got := msg.Init.Address(); got != msg.To {
		return nil, fmt.Errorf("%w: state init derives %s, not %s", ErrAccountNotFound, got.Short(), msg.To.Short())
	}
	return s.spawn(msg.To, *msg.Init, 0, nil)
}

// spawn builds, registers and starts an actor. prepare, when set, runs
// before the actor becomes reachable.
func (s *System) spawn(addr ledger.Address, init ledger.StateInit, balance ledger.Coins, prepare func(*actor) error) (Actor, error) {
	if s.stopped.Load() {
		return nil, ErrSystemStopped
	}
	f, err := s.factory(init.Template)
	if err != nil {
		return nil, err
	}
	h, err := f(addr, init)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", init.Template, err)
	}

	a := newActor(s, addr, init, h, balance)
	if prepare != nil {
		if err := prepare(a); err != nil {
			return nil, err
		}
	}
	existing, loaded := s.router.Register(a)
	if loaded {
		return existing, nil
	}
	if err := a.Start(s.ctx); err != nil {
		return nil, err
	}
	s.log.Debug("actor deployed", zap.String("actor", addr.Short()), zap.String("template", string(init.Template)))
	return a, nil
}

// undeliverable records a failed transaction at an address with no actor and
// bounces the value if possible.
func (s *System) undeliverable(msg *Message, cause error) {
	fees := s.Fees()
	rec := s.newTransaction(msg, "")
	rec.ExitCode = ExitCodeOf(cause)
	rec.Error = cause.Error()

	var bounce *Message
	if msg.Bounceable && !msg.Bounced && msg.Value >= fees.ForwardFee {
		s.sink.Collect(fees.ForwardFee)
		rec.ForwardFees = fees.ForwardFee
		bounce = s.newMessage(msg.Operation, msg.To, msg.From, msg.Value-fees.ForwardFee, msg.Body, nil, false)
		bounce.Bounced = true
		rec.Out = append(rec.Out, outMessageOf(bounce))
	} else {
		// Nobody can hold it.
		s.sink.Collect(msg.Value)
	}
	rec.FinishedAt = time.Now()
	s.record(rec)

	if bounce != nil {
		s.route(bounce)
	}
}

// drop discards a message that can no longer be delivered.
func (s *System) drop(msg *Message) {
	s.sink.Collect(msg.Value)
	s.release(msg)
}

func (s *System) record(rec *Transaction) {
	s.pmu.Lock()
	op := s.ops[rec.Operation]
	s.pmu.Unlock()
	if op != nil {
		op.append(rec)
	}

	s.forEachObserver(func(o Observer) { o.OnTransaction(rec) })
}

func (s *System) forEachObserver(fn func(Observer)) {
	s.omu.RLock()
	obs := make([]Observer, len(s.observers))
	copy(obs, s.observers)
	s.omu.RUnlock()

	for _, o := range obs {
		fn(o)
	}
}

// track counts msg as in flight.
func (s *System) track(msg *Message) {
	s.pmu.Lock()
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	op := s.ops[msg.Operation]
	s.pmu.Unlock()

	if op != nil {
		op.add(1)
	}
}

// release marks msg as fully processed. It must be called after every
// message msg caused has been tracked.
func (s *System) release(msg *Message) {
	s.pmu.Lock()
	op := s.ops[msg.Operation]
	s.pmu.Unlock()

	if op != nil && op.add(-1) {
		s.pmu.Lock()
		delete(s.ops, op.ID)
		s.pmu.Unlock()
		s.forEachObserver(func(o Observer) {
			if oo, ok := o.(OperationObserver); ok {
				oo.OnOperationDone(op)
			}
		})
		op.finish()
	}

	s.pmu.Lock()
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
	s.pmu.Unlock()
}

// ActorSnapshot is the persisted form of one actor.
type ActorSnapshot struct {
	Address  ledger.Address    `json:"address"`
	Template ledger.TemplateID `json:"template"`
	Params   []byte            `json:"params"`
	State    []byte            `json:"state,omitempty"`
	Balance  ledger.Coins      `json:"balance"`
	Deployed bool              `json:"deployed"`
}

// Snapshot is the persisted form of a whole System.
type Snapshot struct {
	Actors []ActorSnapshot `json:"actors"`
	Fees   ledger.Coins    `json:"fees"`
	Minted ledger.Coins    `json:"minted"`
}

// Snapshot captures every actor's state from inside its mailbox. Call it on
// a settled system for a consistent result.
func (s *System) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Fees: s.sink.Total(), Minted: s.Minted()}

	for _, addr := range s.router.List() {
		a, ok := s.router.Lookup(addr)
		if !ok {
			continue
		}
		reply := make(chan snapshotResult, 1)
		if err := a.enqueue(envelope{snapshot: reply}); err != nil {
			return nil, err
		}
		select {
		case r := <-reply:
			if r.err != nil {
				return nil, r.err
			}
			snap.Actors = append(snap.Actors, r.snap)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snap, nil
}

// Checkpoint holds off new submissions, waits for everything in flight to
// settle and snapshots the result. Unlike Snapshot it is safe to call while
// wallets keep sending.
func (s *System) Checkpoint(ctx context.Context) (*Snapshot, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	if err := s.Settle(ctx); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	return s.Snapshot(ctx)
}

// ErrAlreadyDeployed is returned by Restore for an address that is taken.
var ErrAlreadyDeployed = errors.New("address already deployed")

// Restore re-spawns every actor in snap and reloads the books.
func (s *System) Restore(snap *Snapshot) error {
	for _, as := range snap.Actors {
		if s.Exists(as.Address) {
			return fmt.Errorf("restore %s: %w", as.Address.Short(), ErrAlreadyDeployed)
		}
		init := ledger.StateInit{Template: as.Template, Params: as.Params}
		if init.Address() != as.Address {
			return fmt.Errorf("restore %s: state init derives %s", as.Address.Short(), init.Address().Short())
		}

		_, err := s.spawn(as.Address, init, as.Balance, func(a *actor) error {
			a.deployed = as.Deployed
			if len(as.State) == 0 {
				return nil
			}
			r, ok := a.handler.(Snapshotter)
			if !ok {
				return fmt.Errorf("template %s keeps no state", as.Template)
			}
			return r.Restore(as.State)
		})
		if err != nil {
			return fmt.Errorf("restore %s: %w", as.Address.Short(), err)
		}
		if as.Template == WalletTemplate {
			if name, err := ledger.ReadParams(as.Params).String(); err == nil {
				s.book.Label(as.Address, name)
			}
		}
	}
	s.sink.Reset(snap.Fees)
	s.minted.Store(int64(snap.Minted))
	return nil
}
