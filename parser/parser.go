// Package parser wraps the dialect-aware SQL parser. The storage core never
// sees SQL text; everything downstream works on parsed statements.
package parser

import (
	"fmt"

	"github.com/auxten/postgresql-parser/pkg/sql/parser"
	"github.com/rs/zerolog/log"
)

// Parse tokenizes and parses query as Postgres-dialect SQL, returning the
// statement list.
func Parse(query string) (parser.Statements, error) {
	log.Debug().Int("query_len", len(query)).Msg("parsing SQL")

	stmts, err := parser.Parse(query)
	if err != nil {
		log.Debug().Err(err).Msg("parse failed")
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return stmts, nil
}
