// Package executor turns plans into Postgres wire-protocol response frames.
package executor

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/rs/zerolog/log"

	"github.com/alexhholmes/flint/parser"
	"github.com/alexhholmes/flint/planner"
	"github.com/alexhholmes/flint/storage"
)

const oidInt4 = 23

// Executor runs queries against the storage engine and produces the backend
// messages to answer them with.
type Executor struct {
	db *storage.Database
}

// New wires an executor to its database.
func New(db *storage.Database) *Executor {
	return &Executor{db: db}
}

// Database exposes the underlying storage engine.
func (e *Executor) Database() *storage.Database {
	return e.db
}

// Execute parses, plans and executes a query string. The returned messages
// are everything to send before the final ReadyForQuery; an error is
// reported to the client as an ErrorResponse instead.
func (e *Executor) Execute(query string) ([]pgproto3.BackendMessage, error) {
	stmts, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		log.Debug().Msg("empty query")
		return []pgproto3.BackendMessage{&pgproto3.EmptyQueryResponse{}}, nil
	}

	var msgs []pgproto3.BackendMessage
	for i, stmt := range stmts {
		plan := planner.PlanStatement(stmt.AST)
		out, err := e.executePlan(plan)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		msgs = append(msgs, out...)
	}
	log.Debug().Int("statements", len(stmts)).Msg("execution complete")
	return msgs, nil
}

func (e *Executor) executePlan(plan planner.Plan) ([]pgproto3.BackendMessage, error) {
	switch plan.Kind {
	case planner.StartTransaction:
		return []pgproto3.BackendMessage{&pgproto3.CommandComplete{CommandTag: []byte("BEGIN")}}, nil
	case planner.Commit:
		return []pgproto3.BackendMessage{&pgproto3.CommandComplete{CommandTag: []byte("COMMIT")}}, nil
	case planner.Rollback:
		return []pgproto3.BackendMessage{&pgproto3.CommandComplete{CommandTag: []byte("ROLLBACK")}}, nil
	case planner.SelectOne:
		return []pgproto3.BackendMessage{
			&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{{
				Name:         []byte("?column?"),
				DataTypeOID:  oidInt4,
				DataTypeSize: 4,
				TypeModifier: -1,
			}}},
			&pgproto3.DataRow{Values: [][]byte{[]byte("1")}},
			&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")},
		}, nil
	case planner.Unsupported:
		return nil, fmt.Errorf("%s", plan.Reason)
	default:
		return nil, fmt.Errorf("unknown plan kind %d", plan.Kind)
	}
}
