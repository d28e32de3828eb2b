// Package planner is a deliberately narrow pattern matcher: it recognizes
// transaction-control statements and the literal query SELECT 1, and reports
// everything else as unsupported.
package planner

import (
	"fmt"

	"github.com/auxten/postgresql-parser/pkg/sql/sem/tree"
	"github.com/rs/zerolog/log"
)

// Kind enumerates the plans the executor knows how to run.
type Kind int

const (
	StartTransaction Kind = iota
	Rollback
	Commit
	SelectOne
	Unsupported
)

// Plan is the planner's output for one statement. Reason is set only for
// Unsupported plans.
type Plan struct {
	Kind   Kind
	Reason string
}

// PlanStatement maps one parsed statement onto a plan.
func PlanStatement(stmt tree.Statement) Plan {
	switch s := stmt.(type) {
	case *tree.BeginTransaction:
		log.Debug().Msg("plan: start transaction")
		return Plan{Kind: StartTransaction}
	case *tree.CommitTransaction:
		log.Debug().Msg("plan: commit")
		return Plan{Kind: Commit}
	case *tree.RollbackTransaction:
		log.Debug().Msg("plan: rollback")
		return Plan{Kind: Rollback}
	case *tree.Select:
		if isSelectOne(s) {
			log.Debug().Msg("plan: select one")
			return Plan{Kind: SelectOne}
		}
		log.Debug().Msg("plan: unsupported query")
		return Plan{Kind: Unsupported, Reason: "only SELECT 1 is supported"}
	default:
		log.Debug().Msg("plan: unsupported statement")
		return Plan{Kind: Unsupported, Reason: fmt.Sprintf("unsupported statement: %T", stmt)}
	}
}

// isSelectOne matches exactly `SELECT 1`: a single unnamed numeric literal
// projection with no FROM clause.
func isSelectOne(s *tree.Select) bool {
	clause, ok := s.Select.(*tree.SelectClause)
	if !ok {
		return false
	}
	if len(clause.Exprs) != 1 || len(clause.From.Tables) != 0 {
		return false
	}
	num, ok := clause.Exprs[0].Expr.(*tree.NumVal)
	if !ok {
		return false
	}
	return tree.AsString(num) == "1"
}
