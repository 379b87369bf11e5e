package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/dlkeeper/internal/dbx"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/artifacts"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/downloadtokens"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	DownloadTokens(db dbx.DBTX) downloadtokens.Repository
	Artifacts(db dbx.DBTX) artifacts.Repository
}
