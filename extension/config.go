package extension

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/remit"
	"github.com/xraph/remit/types"
)

// Store drivers selectable through Config.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the remit extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.remit" or "remit" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend built over the grove.DB passed with
	// WithGroveDB (default: "memory" without a database).
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver" validate:"omitempty,oneof=memory sqlite postgres mongo"`

	// MongoStandalone writes mongo change sets without a session
	// transaction, for servers that are not part of a replica set.
	MongoStandalone bool `json:"mongo_standalone" mapstructure:"mongo_standalone" yaml:"mongo_standalone"`

	// CustodyAccount is the principal holding funds in flight
	// (default: "remit:custody").
	CustodyAccount string `json:"custody_account" mapstructure:"custody_account" yaml:"custody_account" validate:"omitempty,max=128,principal"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout" validate:"gte=0"`

	// Bootstrap, when set, initializes an empty ledger on start.
	Bootstrap *BootstrapConfig `json:"bootstrap" mapstructure:"bootstrap" yaml:"bootstrap"`

	// Lock configures the distributed invocation lock. Without a Redis
	// address invocations are serialized in-process.
	Lock LockConfig `json:"lock" mapstructure:"lock" yaml:"lock"`

	// Breaker wraps the value transfer collaborator in a circuit breaker.
	Breaker BreakerConfig `json:"breaker" mapstructure:"breaker" yaml:"breaker"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// BootstrapConfig holds the arguments of the initial Initialize call.
type BootstrapConfig struct {
	Admin  string `json:"admin" mapstructure:"admin" yaml:"admin" validate:"required,max=128,principal"`
	Asset  string `json:"asset" mapstructure:"asset" yaml:"asset" validate:"required"`
	FeeBps uint32 `json:"fee_bps" mapstructure:"fee_bps" yaml:"fee_bps" validate:"lte=10000"`
}

// LockConfig configures the Redis invocation lock.
type LockConfig struct {
	RedisAddr string        `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr" validate:"omitempty,hostname_port"`
	Key       string        `json:"key" mapstructure:"key" yaml:"key"`
	Expiry    time.Duration `json:"expiry" mapstructure:"expiry" yaml:"expiry" validate:"gte=0"`
	Tries     int           `json:"tries" mapstructure:"tries" yaml:"tries" validate:"gte=0"`
}

// BreakerConfig configures the custody circuit breaker.
type BreakerConfig struct {
	Enabled             bool          `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	ConsecutiveFailures uint32        `json:"consecutive_failures" mapstructure:"consecutive_failures" yaml:"consecutive_failures"`
	Timeout             time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:         DriverMemory,
		CustodyAccount: string(remit.DefaultCustodyAccount),
		PluginTimeout:  5 * time.Second,
		Lock: LockConfig{
			Key:    "remit:invoke",
			Expiry: 10 * time.Second,
			Tries:  32,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			Timeout:             30 * time.Second,
		},
	}
}

// Validate checks the configuration. Every failing field is reported as a
// remit.ValidationError inside a remit.MultiError.
func (c Config) Validate() error {
	err := types.Validator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var multi remit.MultiError
	for _, fe := range verrs {
		multi.Add(remit.ValidationError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
		})
	}
	return multi
}
