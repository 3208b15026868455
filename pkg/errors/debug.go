package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// contextKeys are the detail keys lifted into logs from any typed error in a
// chain, so a failed distribution or placement can be traced to its rows.
var contextKeys = []string{"member_id", "sponsor_id", "purchase_id", "rule_id", "step", "attempts", "slot_conflicts", "visited", "depth"}

// sqlStateKinds names the Postgres failures the engine reacts to.
var sqlStateKinds = map[string]string{
	"23505": "unique_violation",
	"23503": "foreign_key_violation",
	"23514": "check_violation",
	"23502": "not_null_violation",
	"40001": "serialization_failure",
	"40P01": "deadlock_detected",
	"57014": "query_canceled",
}

// ErrorDump is the log-side view of an error: its code, unwrap chain, engine
// context and, when a database rejected the write, the Postgres diagnostics.
type ErrorDump struct {
	TopMessage string         `json:"top_message"`
	Code       Code           `json:"code,omitempty"`
	Retryable  bool           `json:"retryable"`
	Chain      []string       `json:"chain,omitempty"`
	Context    map[string]any `json:"context,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGKind       string `json:"pg_kind,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Dump walks err and collects everything worth logging about it.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error(), Code: CodeInternal}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	d.Retryable = MetadataFor(d.Code).Retryable

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		if te, ok := e.(*Error); ok {
			d.absorbDetails(te.Details())
		}
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}
	if d.PGCode != "" {
		d.PGKind = sqlStateKinds[d.PGCode]
	}
	return d
}

// Fields flattens the dump into log fields, leaving out empty diagnostics.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":      d.TopMessage,
		"error_code": d.Code,
		"retryable":  d.Retryable,
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	for key, value := range d.Context {
		fields[key] = value
	}
	for key, value := range map[string]string{
		"pg_code":       d.PGCode,
		"pg_kind":       d.PGKind,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_detail":     d.PGDetail,
		"pg_message":    d.PGMessage,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

// absorbDetails keeps the outermost value when several errors carry a key.
func (d *ErrorDump) absorbDetails(details any) {
	put := func(key string, value any) {
		if d.Context == nil {
			d.Context = map[string]any{}
		}
		if _, seen := d.Context[key]; !seen {
			d.Context[key] = value
		}
	}
	for _, key := range contextKeys {
		switch typed := details.(type) {
		case map[string]any:
			if v, ok := typed[key]; ok {
				put(key, v)
			}
		case map[string]string:
			if v, ok := typed[key]; ok {
				put(key, v)
			}
		case map[string]int:
			if v, ok := typed[key]; ok {
				put(key, v)
			}
		}
	}
}
