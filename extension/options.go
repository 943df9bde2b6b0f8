package extension

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/grove"

	"github.com/xraph/remit"
	"github.com/xraph/remit/custody"
	"github.com/xraph/remit/plugin"
	"github.com/xraph/remit/store"
	"github.com/xraph/remit/types"
)

// Option configures the remit Forge extension.
type Option func(*Extension)

// WithStore sets the store for the remit engine. It takes precedence over
// WithGroveDB.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB sets the database the store backend is built on. The
// backend is chosen by Config.Driver.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithRedis sets the client used for the distributed invocation lock,
// overriding Config.Lock.RedisAddr.
func WithRedis(client redis.UniversalClient) Option {
	return func(e *Extension) {
		e.redis = client
	}
}

// WithTransferer sets the value transfer collaborator. It is wrapped in a
// circuit breaker when Config.Breaker.Enabled is set.
func WithTransferer(t custody.Transferer) Option {
	return func(e *Extension) {
		e.transferer = t
	}
}

// WithRemitOption passes a remit.Option through to the underlying engine.
func WithRemitOption(opt remit.Option) Option {
	return func(e *Extension) {
		e.remitOpts = append(e.remitOpts, opt)
	}
}

// WithPlugin registers a remit plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.remitOpts = append(e.remitOpts, remit.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDriver sets the store driver.
func WithDriver(driver string) Option {
	return func(e *Extension) { e.config.Driver = driver }
}

// WithMongoStandalone makes the mongo store write without transactions.
func WithMongoStandalone() Option {
	return func(e *Extension) { e.config.MongoStandalone = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBootstrap initializes an empty ledger on start.
func WithBootstrap(admin types.Address, asset string, feeBps uint32) Option {
	return func(e *Extension) {
		e.config.Bootstrap = &BootstrapConfig{
			Admin:  string(admin),
			Asset:  asset,
			FeeBps: feeBps,
		}
	}
}

// WithCustodyAccount sets the principal holding funds in flight.
func WithCustodyAccount(addr types.Address) Option {
	return func(e *Extension) { e.config.CustodyAccount = string(addr) }
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithBreaker enables the custody circuit breaker.
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(e *Extension) {
		e.config.Breaker = BreakerConfig{
			Enabled:             true,
			ConsecutiveFailures: failures,
			Timeout:             timeout,
		}
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
