package database

import (
	"github.com/huandu/go-sqlbuilder"
)

// NewSelectBuilder returns a Postgres-flavored select builder.
func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// NewInsertBuilder returns a Postgres-flavored insert builder.
func NewInsertBuilder() *sqlbuilder.InsertBuilder {
	return sqlbuilder.PostgreSQL.NewInsertBuilder()
}

// NewUpdateBuilder returns a Postgres-flavored update builder.
func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}
