// Package neo4j wraps the Neo4j driver for the variant graph sink.
package neo4j

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jlog "github.com/neo4j/neo4j-go-driver/v5/neo4j/log"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

// Result abstracts neo4j.ResultWithContext.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
}

// Transaction abstracts neo4j.ManagedTransaction.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// TransactionWork may be retried on transient errors, so it must be
// idempotent.  The graph sink only issues MERGE statements.
type TransactionWork func(tx Transaction) (any, error)

// DriverInterface is what the graph repository needs.
type DriverInterface interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type txConfigurer = func(*neo4j.TransactionConfig)

type internalSession interface {
	ExecuteRead(ctx context.Context, work TransactionWork, configurers ...txConfigurer) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork, configurers ...txConfigurer) (any, error)
	Close(ctx context.Context) error
}

type internalDriver interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession
	Close(ctx context.Context) error
}

type stdResult struct{ res neo4j.ResultWithContext }

func (r *stdResult) Next(ctx context.Context) bool { return r.res.Next(ctx) }
func (r *stdResult) Record() *neo4j.Record         { return r.res.Record() }
func (r *stdResult) Err() error                    { return r.res.Err() }
func (r *stdResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return r.res.Consume(ctx)
}

type stdTransaction struct{ tx neo4j.ManagedTransaction }

func (t *stdTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return &stdResult{res: res}, nil
}

type stdSession struct{ s neo4j.SessionWithContext }

func (s *stdSession) ExecuteRead(ctx context.Context, work TransactionWork, configurers ...txConfigurer) (any, error) {
	return s.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	}, configurers...)
}

func (s *stdSession) ExecuteWrite(ctx context.Context, work TransactionWork, configurers ...txConfigurer) (any, error) {
	return s.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	}, configurers...)
}

func (s *stdSession) Close(ctx context.Context) error { return s.s.Close(ctx) }

type stdDriver struct{ d neo4j.DriverWithContext }

func (d *stdDriver) VerifyConnectivity(ctx context.Context) error { return d.d.VerifyConnectivity(ctx) }
func (d *stdDriver) Close(ctx context.Context) error              { return d.d.Close(ctx) }

func (d *stdDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession {
	return &stdSession{s: d.d.NewSession(ctx, config)}
}

// driverLog forwards the driver's internal log to ours.  Its info lines
// describe routing and pool churn, so they are demoted to DEBUG.
type driverLog struct {
	logger logging.Logger
}

var _ neo4jlog.Logger = driverLog{}

func (l driverLog) Error(name, id string, err error) {
	l.logger.Error("neo4j driver error", logging.String(logging.FieldComponent, name), logging.String("conn", id), logging.Err(err))
}

func (l driverLog) Warnf(name, id, msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...), logging.String(logging.FieldComponent, name), logging.String("conn", id))
}

func (l driverLog) Infof(name, id, msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...), logging.String(logging.FieldComponent, name), logging.String("conn", id))
}

func (l driverLog) Debugf(name, id, msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...), logging.String(logging.FieldComponent, name), logging.String("conn", id))
}

// Driver owns the connection pool and opens one session per unit of work.
// Every transaction is tagged with the application name so it can be traced
// in the server's query log.
type Driver struct {
	driver    internalDriver
	database  string
	txTimeout time.Duration
	logger    logging.Logger
	once      sync.Once
}

var _ DriverInterface = (*Driver)(nil)

// NewDriver connects and verifies connectivity within cfg.ConnectionTimeout.
func NewDriver(ctx context.Context, cfg config.Neo4jConfig, log logging.Logger) (*Driver, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.Log = driverLog{logger: log.Named("neo4j.driver")}
		c.UserAgent = "combinator"
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		c.MaxConnectionLifetime = time.Hour
		if cfg.ConnectionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
			c.SocketConnectTimeout = cfg.ConnectionTimeout
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create neo4j driver")
	}

	verifyCtx := ctx
	if cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, cfg.ConnectionTimeout)
		defer cancel()
	}
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(context.WithoutCancel(ctx))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to connect to neo4j").
			WithDetail("uri=" + cfg.URI)
	}

	d := newDriver(&stdDriver{d: driver}, cfg.Database, log)
	d.txTimeout = cfg.TxTimeout
	d.logger.Info("connected to neo4j", logging.String("uri", cfg.URI), logging.String("database", d.database))
	return d, nil
}

func newDriver(d internalDriver, database string, log logging.Logger) *Driver {
	if database == "" {
		database = "neo4j"
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Driver{driver: d, database: database, logger: log.Named("neo4j")}
}

func (d *Driver) session(ctx context.Context, mode neo4j.AccessMode) internalSession {
	return d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.database, AccessMode: mode})
}

func (d *Driver) txConfig(op string) []txConfigurer {
	cfg := []txConfigurer{neo4j.WithTxMetadata(map[string]any{"app": "combinator", "op": op})}
	if d.txTimeout > 0 {
		cfg = append(cfg, neo4j.WithTxTimeout(d.txTimeout))
	}
	return cfg
}

// ExecuteRead failures are database errors.
func (d *Driver) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	session := d.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, work, d.txConfig("read")...)
	if err != nil {
		return nil, d.classify(err, errors.ErrCodeDatabaseError, "neo4j read failed")
	}
	return result, nil
}

// ExecuteWrite failures are sink write failures: the driver has already
// retried transient errors by the time one surfaces here.
func (d *Driver) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	session := d.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work, d.txConfig("write")...)
	if err != nil {
		return nil, d.classify(err, errors.ErrCodeSinkWriteFailed, "neo4j write failed")
	}
	return result, nil
}

func (d *Driver) classify(err error, code errors.ErrorCode, msg string) error {
	retryable := neo4j.IsRetryable(err)
	d.logger.Error(msg, logging.Err(err), logging.Bool("retryable", retryable))
	ae := errors.Wrap(err, code, msg)
	if retryable {
		ae = ae.WithDetail("transient")
	}
	return ae
}

// HealthCheck verifies connectivity and round-trips a trivial query.
func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j connectivity check failed")
	}
	_, err := d.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		result, err := tx.Run(ctx, "RETURN 1 AS health", nil)
		if err != nil {
			return nil, err
		}
		return ExtractSingleRecord(ctx, result, func(r *neo4j.Record) (any, error) {
			return r.Values[0], nil
		})
	})
	return err
}

// Close closes the driver once.
func (d *Driver) Close(ctx context.Context) error {
	var err error
	d.once.Do(func() {
		if err = d.driver.Close(ctx); err != nil {
			d.logger.Error("failed to close neo4j driver", logging.Err(err))
		}
	})
	return err
}

// ExtractSingleRecord maps the first record.  No record is a NotFound error.
func ExtractSingleRecord[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) (T, error) {
	var zero T
	if result.Next(ctx) {
		return mapper(result.Record())
	}
	if err := result.Err(); err != nil {
		return zero, err
	}
	return zero, errors.New(errors.ErrCodeNotFound, "no record found")
}

//Personal.AI order the ending
