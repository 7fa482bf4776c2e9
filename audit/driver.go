package audit

import (
	"database/sql/driver"

	"github.com/rs/zerolog"
)

type Option func(*Driver)

// WithIDGenerator sets the ID generator for audit records.
func WithIDGenerator(gen IDGenerator) Option {
	return func(d *Driver) {
		d.builder.idGenerator = gen
	}
}

// WithRiskRules replaces the default risk classification rules.
func WithRiskRules(rules RiskRules) Option {
	return func(d *Driver) {
		d.builder.riskRules = rules
	}
}

// WithTableFilters restricts which tables are audited. The audit table
// itself and migration bookkeeping are always excluded.
func WithTableFilters(filters ...TableFilter) Option {
	return func(d *Driver) {
		d.builder.tableFilters = filters
	}
}

// WithLogger sets the logger for the engine's warning paths (sentinel
// actor fallback). Defaults to a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) {
		d.builder.logger = logger
	}
}

// Driver wraps a PostgreSQL driver and audits every mutating statement
// executed through it.
type Driver struct {
	driver.Driver
	builder *recordBuilder
}

// NewDriver creates an audit driver from a driver.Driver.
func NewDriver(d driver.Driver, options ...Option) driver.Driver {
	return newAuditDriver(d, options...)
}

// NewConnector creates an audit driver from a driver.Connector.
func NewConnector(c driver.Connector, options ...Option) driver.Driver {
	return newAuditDriver(c.Driver(), options...)
}

// New accepts either a driver.Driver or a driver.Connector.
func New(d interface{}, options ...Option) driver.Driver {
	var baseDriver driver.Driver

	switch v := d.(type) {
	case driver.Driver:
		baseDriver = v
	case driver.Connector:
		baseDriver = v.Driver()
	default:
		panic("audit.New: argument must be driver.Driver or driver.Connector")
	}

	return newAuditDriver(baseDriver, options...)
}

func newAuditDriver(d driver.Driver, options ...Option) driver.Driver {
	drv := &Driver{
		Driver:  d,
		builder: &recordBuilder{logger: zerolog.Nop()},
	}

	for _, option := range options {
		option(drv)
	}

	drv.builder.fillDefaults()

	return drv
}

func (d *Driver) Open(name string) (driver.Conn, error) {
	conn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: conn, builder: d.builder}, nil
}

var (
	_ driver.Driver = (*Driver)(nil)
)
