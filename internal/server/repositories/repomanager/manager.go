package repomanager

import (
	"context"
	"database/sql"

	"github.com/akarpov91/chainanchor/internal/dbx"
	"github.com/akarpov91/chainanchor/internal/server/repositories/challenges"
	"github.com/akarpov91/chainanchor/internal/server/repositories/sessions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Challenges(db dbx.DBTX) challenges.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
