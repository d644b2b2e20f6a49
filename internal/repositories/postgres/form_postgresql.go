package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/cache"
	"github.com/SAP-F-2025/form-exam-service/internal/models"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"gorm.io/gorm"
)

const questionCacheTTL = 10 * time.Minute

type FormPostgreSQL struct {
	helpers *SharedHelpers
	cache   cache.CacheService
}

func NewFormPostgreSQL(helpers *SharedHelpers, formCache cache.CacheService) repositories.FormRepository {
	return &FormPostgreSQL{helpers: helpers, cache: formCache}
}

func (f *FormPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Form, error) {
	return f.load(ctx, tx, fmt.Sprintf("form %d", id), func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	})
}

func (f *FormPostgreSQL) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*models.Form, error) {
	return f.load(ctx, tx, fmt.Sprintf("form %q", slug), func(db *gorm.DB) *gorm.DB {
		return db.Where("slug = ?", slug)
	})
}

// load always reads the form row itself so status and settings are current.
// Only the question payload goes through the cache.
func (f *FormPostgreSQL) load(ctx context.Context, tx *gorm.DB, label string, scope func(*gorm.DB) *gorm.DB) (*models.Form, error) {
	var form models.Form
	err := scope(f.helpers.getDB(ctx, tx)).First(&form).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", label, err)
	}

	questions, err := f.questions(ctx, tx, &form)
	if err != nil {
		return nil, err
	}
	form.Questions = questions
	return &form, nil
}

// questions reads through the cache outside transactions. The key carries
// the form's updated_at, so an edit that touches the form moves readers to
// a fresh entry.
func (f *FormPostgreSQL) questions(ctx context.Context, tx *gorm.DB, form *models.Form) ([]models.Question, error) {
	useCache := tx == nil && f.cache != nil
	key := cache.QuestionsKey(form.ID, form.UpdatedAt)
	if useCache {
		var cached []models.Question
		if err := f.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	var questions []models.Question
	err := f.helpers.getDB(ctx, tx).
		Where("form_id = ?", form.ID).
		Order("position ASC, id ASC").
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_options.position ASC, question_options.id ASC")
		}).
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get questions of form %d: %w", form.ID, err)
	}

	if useCache {
		// a cache write failure only costs the next read a query
		_ = f.cache.Set(ctx, key, questions, questionCacheTTL)
	}
	return questions, nil
}
