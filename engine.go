package remit

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/remit/auth"
	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/lock"
	"github.com/xraph/remit/plugin"
	"github.com/xraph/remit/store"
	"github.com/xraph/remit/types"
)

// DefaultCustodyAccount is the principal holding funds of pending
// remittances and accumulated fees.
const DefaultCustodyAccount types.Address = "remit:custody"

const tracerName = "github.com/xraph/remit"

// Engine is the remittance settlement ledger.
type Engine struct {
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	clock      func() time.Time
	authorizer auth.Authorizer
	transferer custody.Transferer
	reverser   custody.Transferer
	locker     lock.Locker
	tracer     trace.Tracer
	custody    types.Address
}

// New creates a new Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		clock:      time.Now,
		authorizer: auth.Context{},
		transferer: custody.NewMemory(),
		locker:     lock.NewLocal(),
		tracer:     otel.Tracer(tracerName),
		custody:    DefaultCustodyAccount,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithClock sets the time source. It is read once per invocation.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithAuthorizer sets the authorization capability.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(e *Engine) {
		e.authorizer = a
	}
}

// WithTransferer sets the value transfer collaborator.
func WithTransferer(t custody.Transferer) Option {
	return func(e *Engine) {
		e.transferer = t
	}
}

// WithCompensationTransferer sets the collaborator that reverses executed
// moves after a failed invocation. It defaults to the transferer. Pass the
// unwrapped custody when the transferer sits behind a circuit breaker, so
// an open breaker cannot strand executed moves.
func WithCompensationTransferer(t custody.Transferer) Option {
	return func(e *Engine) {
		e.reverser = t
	}
}

// WithLocker sets the invocation lock.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithCustodyAccount sets the principal that holds funds in flight.
func WithCustodyAccount(addr types.Address) Option {
	return func(e *Engine) {
		e.custody = addr
	}
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// CustodyAccount returns the principal holding funds in flight.
func (e *Engine) CustodyAccount() types.Address { return e.custody }

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("remit started",
		"custody_account", e.custody,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// invoke runs fn as one serialized, all-or-nothing invocation.
func (e *Engine) invoke(ctx context.Context, op string, fn func(inv *invocation) error) error {
	ctx, span := e.tracer.Start(ctx, "remit."+op,
		trace.WithAttributes(attribute.String("remit.op", op)),
	)
	defer span.End()

	err := e.run(ctx, op, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if k := KindOf(err); k != KindUnknown {
			span.SetAttributes(attribute.String("remit.error_kind", k.String()))
		}
		e.plugins.EmitInvocationFailed(ctx, op, err)
		e.logger.Debug("remit invocation aborted",
			"op", op,
			"error", err,
		)
	}
	return err
}

func (e *Engine) run(ctx context.Context, op string, fn func(inv *invocation) error) error {
	unlock, err := e.locker.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	inv := newInvocation(ctx, e, op, e.clock())
	if err := fn(inv); err != nil {
		return err
	}
	if err := inv.commit(); err != nil {
		return err
	}
	inv.publish()
	return nil
}

// authorize fails with ErrUnauthorized unless principal approved the call.
func (e *Engine) authorize(ctx context.Context, principal types.Address) error {
	if !e.authorizer.Authorized(ctx, principal) {
		return ErrUnauthorized
	}
	return nil
}
