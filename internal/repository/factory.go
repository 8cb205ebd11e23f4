package repository

import (
	"github.com/meterline/meterline/internal/domain/usage"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/postgres"
	postgresRepo "github.com/meterline/meterline/internal/repository/postgres"
)

func NewUsageRepository(db *postgres.DB, log *logger.Logger) usage.Repository {
	return postgresRepo.NewUsageRepository(db, log)
}
