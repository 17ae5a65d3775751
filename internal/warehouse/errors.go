package warehouse

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"dwh/internal/readiness"
	"dwh/internal/storage"
)

// ErrorKind classifies a fatal stage failure.
type ErrorKind string

const (
	// KindConnectivity: source or warehouse unreachable.
	KindConnectivity ErrorKind = "CONNECTIVITY"
	// KindSchema: an expected table or column is absent.
	KindSchema ErrorKind = "SCHEMA"
	// KindInternal: anything else, including malformed source values.
	KindInternal ErrorKind = "INTERNAL"
)

// Stage names used in errors, logs and metrics.
const (
	StageConnect        = "connect"
	StageSchema         = "schema"
	StageLoadProducts   = "load_products"
	StageLoadCustomers  = "load_customers"
	StageLoadDates      = "load_dates"
	StageBuildLookups   = "build_lookups"
	StageLoadFacts      = "load_facts"
	StageCountWarehouse = "count_warehouse"
)

// StageError is the error every pipeline stage returns on failure.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("[%s] stage %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return classifyKind(err)
}

// StageOf returns the failing stage name, or "" when err is not a StageError.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func classifyKind(err error) ErrorKind {
	switch {
	case errors.Is(err, storage.ErrSchemaMismatch):
		return KindSchema
	case errors.Is(err, readiness.ErrNotReady):
		return KindConnectivity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// context.DeadlineExceeded also satisfies net.Error.
		return KindInternal
	case isConnectionLost(err):
		return KindConnectivity
	default:
		return KindInternal
	}
}

// isConnectionLost reports a connection that dropped or could not be
// established after the readiness poll passed.
func isConnectionLost(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// stageErr wraps err for stage. It keeps an existing StageError intact.
func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Kind: classifyKind(err), Err: err}
}
