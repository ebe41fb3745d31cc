package sqlstore

import (
	"strconv"
	"strings"

	audit "clinicaudit/pkg/platform/audit"
)

// whereBuilder accumulates AND-ed predicates with dialect-correct
// placeholders.
type whereBuilder struct {
	dialect Dialect
	conds   []string
	args    []any
}

func (s *Store) where(f audit.Filter) *whereBuilder {
	b := &whereBuilder{dialect: s.dialect}
	if len(f.EventTypes) > 0 {
		vals := make([]any, len(f.EventTypes))
		for i, t := range f.EventTypes {
			vals[i] = string(t)
		}
		b.in("event_type", vals)
	}
	if len(f.Severities) > 0 {
		vals := make([]any, len(f.Severities))
		for i, sev := range f.Severities {
			vals[i] = string(sev)
		}
		b.in("severity", vals)
	}
	if !f.From.IsZero() {
		b.add("timestamp >= ", audit.FormatTimestamp(f.From))
	}
	if !f.To.IsZero() {
		b.add("timestamp <= ", audit.FormatTimestamp(f.To))
	}
	if f.ResourceID != "" {
		b.add("resource_id = ", f.ResourceID)
	}
	if f.UserID != "" {
		b.add("user_id = ", f.UserID)
	}
	if f.Username != "" {
		b.add("username = ", f.Username)
	}
	return b
}

func (b *whereBuilder) next(arg any) string {
	b.args = append(b.args, arg)
	return b.dialect.bind(len(b.args))
}

func (b *whereBuilder) add(prefix string, arg any) {
	b.conds = append(b.conds, prefix+b.next(arg))
}

func (b *whereBuilder) in(column string, vals []any) {
	marks := make([]string, len(vals))
	for i, v := range vals {
		marks[i] = b.next(v)
	}
	b.conds = append(b.conds, column+" IN ("+strings.Join(marks, ", ")+")")
}

func (b *whereBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// page renders LIMIT/OFFSET. SQLite cannot take OFFSET without LIMIT, so an
// unbounded page there uses LIMIT -1.
func (b *whereBuilder) page(limit, offset int) string {
	var sb strings.Builder
	switch {
	case limit > 0:
		sb.WriteString(" LIMIT " + strconv.Itoa(limit))
	case offset > 0 && b.dialect == DialectSQLite:
		sb.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(offset))
	}
	return sb.String()
}
