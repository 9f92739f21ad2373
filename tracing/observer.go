package tracing

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/najoast/catalog/core"
)

// Span attribute keys.
const (
	AttrOperationID = attribute.Key("operation.id")
	AttrOrigin      = attribute.Key("operation.origin")
	AttrTarget      = attribute.Key("operation.target")
	AttrTxCount     = attribute.Key("operation.transactions")
	AttrFees        = attribute.Key("operation.fees")
	AttrFrom        = attribute.Key("tx.from")
	AttrTo          = attribute.Key("tx.to")
	AttrOp          = attribute.Key("tx.op")
	AttrTemplate    = attribute.Key("tx.template")
	AttrExitCode    = attribute.Key("tx.exit_code")
	AttrValue       = attribute.Key("tx.value")
	AttrLT          = attribute.Key("tx.lt")
	AttrDeploy      = attribute.Key("tx.deploy")
	AttrBounced     = attribute.Key("tx.bounced")
)

// Observer turns operations and transactions into spans. It implements
// core.Observer and core.OperationObserver.
type Observer struct {
	tracer trace.Tracer

	mu    sync.Mutex
	roots map[uuid.UUID]rootSpan
}

type rootSpan struct {
	ctx  context.Context
	span trace.Span
}

// NewObserver creates an Observer that starts spans on tracer.
func NewObserver(tracer trace.Tracer) *Observer {
	return &Observer{tracer: tracer, roots: make(map[uuid.UUID]rootSpan)}
}

// OnOperationStart opens the root span of op.
func (o *Observer) OnOperationStart(op *core.Operation) {
	ctx, span := o.tracer.Start(context.Background(), "operation "+op.Op,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(op.StartedAt),
		trace.WithAttributes(
			AttrOperationID.String(op.ID.String()),
			AttrOrigin.String(op.Origin.String()),
			AttrTarget.String(op.Target.String()),
			AttrOp.String(op.Op),
		),
	)
	o.mu.Lock()
	o.roots[op.ID] = rootSpan{ctx: ctx, span: span}
	o.mu.Unlock()
}

// OnTransaction records tx as a finished child span of its operation.
func (o *Observer) OnTransaction(tx *core.Transaction) {
	o.mu.Lock()
	root, ok := o.roots[tx.Operation]
	o.mu.Unlock()

	parent := context.Background()
	if ok {
		parent = root.ctx
	}

	_, span := o.tracer.Start(parent, tx.Op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(tx.StartedAt),
		trace.WithAttributes(
			AttrOperationID.String(tx.Operation.String()),
			AttrFrom.String(tx.From.String()),
			AttrTo.String(tx.To.String()),
			AttrOp.String(tx.Op),
			AttrTemplate.String(string(tx.Template)),
			AttrExitCode.Int(tx.ExitCode),
			AttrValue.String(tx.Value.String()),
			AttrLT.Int64(int64(tx.LT)),
			AttrDeploy.Bool(tx.Deploy),
			AttrBounced.Bool(tx.Bounced),
		),
	)
	if !tx.Success {
		span.SetStatus(codes.Error, tx.Error)
	}
	span.End(trace.WithTimestamp(tx.FinishedAt))
}

// OnOperationDone closes the root span of op.
func (o *Observer) OnOperationDone(op *core.Operation) {
	o.mu.Lock()
	root, ok := o.roots[op.ID]
	delete(o.roots, op.ID)
	o.mu.Unlock()
	if !ok {
		return
	}

	txs := op.Transactions()
	root.span.SetAttributes(
		AttrTxCount.Int(len(txs)),
		AttrFees.String(op.Fees().String()),
	)
	for _, tx := range txs {
		if !tx.Success {
			root.span.SetStatus(codes.Error, tx.Op+": "+tx.Error)
			break
		}
	}
	root.span.End(trace.WithTimestamp(op.StartedAt.Add(op.Duration())))
}
