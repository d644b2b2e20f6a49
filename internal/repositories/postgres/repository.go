package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/form-exam-service/internal/cache"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"gorm.io/gorm"
)

type repository struct {
	db        *gorm.DB
	form      repositories.FormRepository
	session   repositories.SessionRepository
	response  repositories.ResponseRepository
	violation repositories.ViolationRepository
}

// NewRepository wires the PostgreSQL repositories. formCache may be nil.
func NewRepository(db *gorm.DB, formCache cache.CacheService) repositories.Repository {
	helpers := NewSharedHelpers(db)
	return &repository{
		db:        db,
		form:      NewFormPostgreSQL(helpers, formCache),
		session:   NewSessionPostgreSQL(helpers),
		response:  NewResponsePostgreSQL(helpers),
		violation: NewViolationPostgreSQL(helpers),
	}
}

func (r *repository) Form() repositories.FormRepository           { return r.form }
func (r *repository) Session() repositories.SessionRepository     { return r.session }
func (r *repository) Response() repositories.ResponseRepository   { return r.response }
func (r *repository) Violation() repositories.ViolationRepository { return r.violation }

func (r *repository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SharedHelpers holds the base connection shared by all repositories.
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

func (h *SharedHelpers) getDB(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return h.db.WithContext(ctx)
}
