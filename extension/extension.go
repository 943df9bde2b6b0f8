// Package extension provides the Forge extension adapter for remit.
//
// It implements the forge.Extension interface to integrate the remittance
// ledger into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.remit" or "remit" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/remit"
	"github.com/xraph/remit/custody"
	redislock "github.com/xraph/remit/lock/redis"
	"github.com/xraph/remit/store"
	"github.com/xraph/remit/store/memory"
	"github.com/xraph/remit/store/mongo"
	"github.com/xraph/remit/store/postgres"
	"github.com/xraph/remit/store/sqlite"
	"github.com/xraph/remit/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "remit"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Remittance settlement ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts remit as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *remit.Engine
	store      store.Store
	groveDB    *grove.DB
	redis      redis.UniversalClient
	ownRedis   bool
	transferer custody.Transferer
	remitOpts  []remit.Option
}

// New creates a new remit Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying remit engine.
// This is nil until Register is called.
func (e *Extension) Engine() *remit.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// builds the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	eng, err := e.build()
	if err != nil {
		return err
	}
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*remit.Engine, error) {
		return e.engine, nil
	})
}

// build resolves the store and collaborators and constructs the engine.
func (e *Extension) build() (*remit.Engine, error) {
	if e.store == nil {
		s, err := e.resolveStore()
		if err != nil {
			return nil, err
		}
		e.store = s
	}

	opts, err := e.buildRemitOpts()
	if err != nil {
		return nil, err
	}
	return remit.New(e.store, opts...), nil
}

// resolveStore builds the store backend named by Config.Driver.
func (e *Extension) resolveStore() (store.Store, error) {
	driver := e.config.Driver
	if driver == "" || driver == DriverMemory {
		if e.groveDB != nil && driver == "" {
			return nil, errors.New("remit: a grove database was provided without a driver")
		}
		return memory.New(), nil
	}
	if e.groveDB == nil {
		return nil, fmt.Errorf("remit: driver %q requires WithGroveDB", driver)
	}

	switch driver {
	case DriverSQLite:
		return sqlite.New(e.groveDB), nil
	case DriverPostgres:
		return postgres.New(e.groveDB), nil
	case DriverMongo:
		var opts []mongo.Option
		if e.config.MongoStandalone {
			opts = append(opts, mongo.WithStandalone())
		}
		return mongo.New(e.groveDB, opts...), nil
	default:
		return nil, fmt.Errorf("remit: unknown driver %q", driver)
	}
}

// buildRemitOpts constructs remit.Option values from the resolved config.
func (e *Extension) buildRemitOpts() ([]remit.Option, error) {
	opts := make([]remit.Option, 0, len(e.remitOpts)+4)

	if e.config.CustodyAccount != "" {
		opts = append(opts, remit.WithCustodyAccount(types.Address(e.config.CustodyAccount)))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, remit.WithPluginTimeout(e.config.PluginTimeout))
	}

	if e.transferer != nil {
		t := e.transferer
		if e.config.Breaker.Enabled {
			cfg := custody.DefaultBreakerConfig()
			if e.config.Breaker.ConsecutiveFailures > 0 {
				cfg.ConsecutiveFailures = e.config.Breaker.ConsecutiveFailures
			}
			if e.config.Breaker.Timeout > 0 {
				cfg.Timeout = e.config.Breaker.Timeout
			}
			opts = append(opts, remit.WithCompensationTransferer(t))
			t = custody.NewBreaker(t, cfg, nil)
		}
		opts = append(opts, remit.WithTransferer(t))
	}

	if e.redis == nil && e.config.Lock.RedisAddr != "" {
		e.redis = redis.NewClient(&redis.Options{Addr: e.config.Lock.RedisAddr})
		e.ownRedis = true
	}
	if e.redis != nil {
		var lockOpts []redislock.Option
		if e.config.Lock.Key != "" {
			lockOpts = append(lockOpts, redislock.WithKey(e.config.Lock.Key))
		}
		if e.config.Lock.Expiry > 0 {
			lockOpts = append(lockOpts, redislock.WithExpiry(e.config.Lock.Expiry))
		}
		if e.config.Lock.Tries > 0 {
			lockOpts = append(lockOpts, redislock.WithTries(e.config.Lock.Tries))
		}
		opts = append(opts, remit.WithLocker(redislock.New(e.redis, lockOpts...)))
	}

	// Append any pass-through remit options.
	opts = append(opts, e.remitOpts...)

	return opts, nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("remit: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// bootstrap initializes the ledger from Config.Bootstrap when the store
// holds no administrative state yet.
func (e *Extension) bootstrap(ctx context.Context) error {
	b := e.config.Bootstrap
	if b == nil {
		return nil
	}

	err := e.engine.Initialize(ctx, types.Address(b.Admin), b.Asset, b.FeeBps)
	switch {
	case err == nil:
		e.Logger().Info("remit: ledger bootstrapped",
			forge.F("admin", b.Admin),
			forge.F("asset", b.Asset),
			forge.F("fee_bps", b.FeeBps),
		)
		return nil
	case errors.Is(err, remit.ErrAlreadyInitialized):
		return nil
	default:
		return fmt.Errorf("remit: bootstrap: %w", err)
	}
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		errs = append(errs, e.engine.Stop())
	}
	if e.ownRedis && e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("remit: store not initialized")
	}
	return e.store.Ping(ctx)
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("remit: configuration is required but not found in config files; " +
				"ensure 'extensions.remit' or 'remit' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	if err := e.config.Validate(); err != nil {
		return fmt.Errorf("remit: invalid configuration: %w", err)
	}

	e.Logger().Debug("remit: configuration loaded",
		forge.F("driver", e.config.Driver),
		forge.F("mongo_standalone", e.config.MongoStandalone),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("custody_account", e.config.CustodyAccount),
		forge.F("plugin_timeout", e.config.PluginTimeout),
		forge.F("bootstrap", e.config.Bootstrap != nil),
		forge.F("redis_lock", e.config.Lock.RedisAddr != "" || e.redis != nil),
		forge.F("breaker", e.config.Breaker.Enabled),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.remit" first (namespaced pattern).
	if cm.IsSet("extensions.remit") {
		if err := cm.Bind("extensions.remit", &cfg); err == nil {
			e.Logger().Debug("remit: loaded config from file",
				forge.F("key", "extensions.remit"),
			)
			return cfg, true
		}
		e.Logger().Warn("remit: failed to bind extensions.remit config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "remit" key.
	if cm.IsSet("remit") {
		if err := cm.Bind("remit", &cfg); err == nil {
			e.Logger().Debug("remit: loaded config from file",
				forge.F("key", "remit"),
			)
			return cfg, true
		}
		e.Logger().Warn("remit: failed to bind remit config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.CustodyAccount == "" {
		cfg.CustodyAccount = defaults.CustodyAccount
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	if cfg.Lock.Key == "" {
		cfg.Lock.Key = defaults.Lock.Key
	}
	if cfg.Lock.Expiry == 0 {
		cfg.Lock.Expiry = defaults.Lock.Expiry
	}
	if cfg.Lock.Tries == 0 {
		cfg.Lock.Tries = defaults.Lock.Tries
	}
	if cfg.Breaker.ConsecutiveFailures == 0 {
		cfg.Breaker.ConsecutiveFailures = defaults.Breaker.ConsecutiveFailures
	}
	if cfg.Breaker.Timeout == 0 {
		cfg.Breaker.Timeout = defaults.Breaker.Timeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.Breaker.Enabled {
		yamlConfig.Breaker.Enabled = true
	}
	if programmaticConfig.MongoStandalone {
		yamlConfig.MongoStandalone = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.CustodyAccount == "" {
		yamlConfig.CustodyAccount = programmaticConfig.CustodyAccount
	}
	if yamlConfig.Lock.RedisAddr == "" {
		yamlConfig.Lock.RedisAddr = programmaticConfig.Lock.RedisAddr
	}

	// Duration/pointer fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	if yamlConfig.Bootstrap == nil {
		yamlConfig.Bootstrap = programmaticConfig.Bootstrap
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
