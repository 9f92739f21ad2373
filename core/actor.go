package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najoast/catalog/ledger"
)

// actor implements the Actor interface.
type actor struct {
	addr    ledger.Address
	init    ledger.StateInit
	handler Handler
	sys     *System
	balance *ledger.Balance
	log     *zap.Logger

	mailbox *mailbox

	// Context for controlling the Actor lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for graceful shutdown
	wg sync.WaitGroup

	// deployed is set once the first message has been processed. Only the
	// message loop touches it after start.
	deployed bool

	// Atomic counters for statistics
	state             int32 // ActorState
	started           int32
	messagesProcessed uint64
	createdAt         time.Time
	lastMessageAt     int64 // UnixNano

	opts ActorOptions
}

func newActor(sys *System, addr ledger.Address, init ledger.StateInit, handler Handler, balance ledger.Coins) *actor {
	ctx, cancel := context.WithCancel(context.Background())
	opts := sys.actorOpts

	a := &actor{
		addr:      addr,
		init:      init,
		handler:   handler,
		sys:       sys,
		balance:   ledger.NewBalance(balance),
		log:       sys.log.With(zap.String("actor", addr.Short()), zap.String("template", string(init.Template))),
		mailbox:   newMailbox(opts.MailboxSize),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: time.Now(),
		opts:      opts,
	}

	atomic.StoreInt32(&a.state, int32(ActorStateIdle))

	return a
}

// Address returns the derived address of this Actor.
func (a *actor) Address() ledger.Address {
	return a.addr
}

// Init returns the StateInit the Actor was deployed with.
func (a *actor) Init() ledger.StateInit {
	return a.init
}

// Balance returns the current balance.
func (a *actor) Balance() ledger.Coins {
	return a.balance.Load()
}

// Start begins the Actor's message processing loop. Cancelling ctx stops the
// loop as Stop would.
func (a *actor) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&a.started, 0, 1) {
		return fmt.Errorf("actor %s is already started (state: %s)",
			a.addr.Short(), ActorState(atomic.LoadInt32(&a.state)))
	}

	context.AfterFunc(ctx, a.cancel)

	a.wg.Add(1)
	go a.messageLoop()

	return nil
}

// Stop gracefully shuts down the Actor.
func (a *actor) Stop() error {
	if !atomic.CompareAndSwapInt32(&a.state, int32(ActorStateIdle), int32(ActorStateStopping)) &&
		!atomic.CompareAndSwapInt32(&a.state, int32(ActorStateRunning), int32(ActorStateStopping)) {
		return fmt.Errorf("actor %s cannot be stopped from state %s",
			a.addr.Short(), ActorState(atomic.LoadInt32(&a.state)))
	}

	a.cancel()
	a.wg.Wait()

	// Never started: nothing drained the mailbox.
	if atomic.LoadInt32(&a.started) == 0 {
		a.drainMailbox()
	}

	atomic.StoreInt32(&a.state, int32(ActorStateStopped))

	return nil
}

func (a *actor) enqueue(e envelope) error {
	if !a.mailbox.push(e) {
		return fmt.Errorf("actor %s: %w", a.addr.Short(), ErrSystemStopped)
	}
	return nil
}

// Stats returns current runtime statistics for this Actor.
func (a *actor) Stats() ActorStats {
	lastMsg := atomic.LoadInt64(&a.lastMessageAt)
	var lastMessageAt time.Time
	if lastMsg > 0 {
		lastMessageAt = time.Unix(0, lastMsg)
	}

	return ActorStats{
		Address:           a.addr,
		Name:              a.sys.book.Name(a.addr),
		Template:          a.init.Template,
		State:             ActorState(atomic.LoadInt32(&a.state)),
		Balance:           a.balance.Load(),
		MessagesProcessed: atomic.LoadUint64(&a.messagesProcessed),
		MailboxSize:       a.mailbox.len(),
		CreatedAt:         a.createdAt,
		LastMessageAt:     lastMessageAt,
	}
}

// messageLoop is the main processing loop for the Actor.
func (a *actor) messageLoop() {
	defer a.wg.Done()

	for {
		e, ok := a.mailbox.pop(a.ctx)
		if !ok {
			a.drainMailbox()
			return
		}
		switch {
		case e.msg != nil:
			a.processMessage(e.msg)
		case e.query != nil:
			a.processQuery(e.query)
		case e.snapshot != nil:
			a.processSnapshot(e.snapshot)
		}
	}
}

// processMessage runs one transaction.
func (a *actor) processMessage(msg *Message) {
	atomic.CompareAndSwapInt32(&a.state, int32(ActorStateIdle), int32(ActorStateRunning))
	defer atomic.CompareAndSwapInt32(&a.state, int32(ActorStateRunning), int32(ActorStateIdle))

	atomic.AddUint64(&a.messagesProcessed, 1)
	atomic.StoreInt64(&a.lastMessageAt, time.Now().UnixNano())

	fees := a.sys.Fees()
	rec := a.sys.newTransaction(msg, a.init.Template)
	rec.Deploy = !a.deployed
	a.deployed = true

	// Credit phase, then compute fee.
	a.balance.Credit(msg.Value)
	compute := min(fees.ComputeFee, msg.Value)
	a.mustDebit(compute)
	a.sys.sink.Collect(compute)
	rec.ComputeFee = compute

	var (
		sends []Outbound
		keep  bool
		err   error
	)
	if msg.Value < fees.ComputeFee {
		err = fmt.Errorf("%w: attached %s, compute fee %s", ErrInsufficientValue, msg.Value, fees.ComputeFee)
	} else {
		tx := newTx(a, msg, fees)
		if err = a.invoke(tx, msg); err == nil {
			sends, err = tx.commit()
		}
		keep = tx.keep
	}

	var out []*Message
	if err != nil {
		rec.Success = false
		rec.ExitCode = ExitCodeOf(err)
		rec.Error = err.Error()
		if msg.Value >= fees.ComputeFee && msg.Bounceable && !msg.Bounced && !keep {
			out = a.bounce(rec, msg, msg.Value-compute, fees)
		}
		a.log.Debug("transaction failed",
			zap.String("op", msg.OpName()),
			zap.String("query_id", msg.Operation.String()),
			zap.Int("exit_code", rec.ExitCode),
			zap.Error(err))
	} else {
		rec.Success = true
		for _, o := range sends {
			out = append(out, a.emit(rec, msg.Operation, o, false, fees))
		}
	}

	rec.BalanceAfter = a.balance.Load()
	rec.FinishedAt = time.Now()
	a.sys.record(rec)

	for _, m := range out {
		a.sys.route(m)
	}
	a.sys.release(msg)
}

func (a *actor) invoke(tx *Tx, msg *Message) (err error) {
	ctx, cancel := context.WithTimeout(a.ctx, a.opts.ProcessTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			a.log.Error("handler panic", zap.Any("panic", r), zap.String("op", msg.OpName()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return a.handler.HandleMessage(ctx, tx, msg)
}

// emit debits an outbound message from the balance and pays its forward fee.
func (a *actor) emit(rec *Transaction, op uuid.UUID, o Outbound, bounced bool, fees ledger.FeeSchedule) *Message {
	a.mustDebit(o.Value)
	a.sys.sink.Collect(fees.ForwardFee)
	rec.ForwardFees += fees.ForwardFee

	m := a.sys.newMessage(op, a.addr, o.To, o.Value-fees.ForwardFee, o.Body, o.Init, o.Bounce)
	m.Bounced = bounced
	rec.Out = append(rec.Out, outMessageOf(m))
	return m
}

// bounce returns value to the sender of msg. Value too small to pay for its
// own delivery stays on the balance.
func (a *actor) bounce(rec *Transaction, msg *Message, value ledger.Coins, fees ledger.FeeSchedule) []*Message {
	if value < fees.ForwardFee {
		return nil
	}
	o := Outbound{To: msg.From, Value: value, Body: msg.Body}
	return []*Message{a.emit(rec, msg.Operation, o, true, fees)}
}

func (a *actor) mustDebit(v ledger.Coins) {
	if err := a.balance.Debit(v); err != nil {
		// Outflow is bounded by the inbound value, so this is a runtime bug.
		panic(fmt.Sprintf("actor %s: %v", a.addr.Short(), err))
	}
}

func (a *actor) processQuery(q *query) {
	getter, ok := a.handler.(Getter)
	if !ok {
		q.reply <- queryResult{err: fmt.Errorf("%s: %w", a.addr.Short(), ErrNoGetter)}
		return
	}
	v, err := getter.Get(q.method, q.args)
	q.reply <- queryResult{value: v, err: err}
}

func (a *actor) processSnapshot(reply chan<- snapshotResult) {
	snap := ActorSnapshot{
		Address:  a.addr,
		Template: a.init.Template,
		Params:   a.init.Params,
		Balance:  a.balance.Load(),
		Deployed: a.deployed,
	}
	if s, ok := a.handler.(Snapshotter); ok {
		state, err := s.Snapshot()
		if err != nil {
			reply <- snapshotResult{err: fmt.Errorf("snapshot %s: %w", a.addr.Short(), err)}
			return
		}
		snap.State = state
	}
	reply <- snapshotResult{snap: snap}
}

// drainMailbox settles whatever was still queued at shutdown.
func (a *actor) drainMailbox() {
	for _, e := range a.mailbox.close() {
		switch {
		case e.msg != nil:
			a.sys.drop(e.msg)
		case e.query != nil:
			e.query.reply <- queryResult{err: ErrSystemStopped}
		case e.snapshot != nil:
			e.snapshot <- snapshotResult{err: ErrSystemStopped}
		}
	}
}
