// Package users persists registered identities with Gorm.
package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wikiloult/app/internal/domain/errs"
	domainusers "wikiloult/app/internal/domain/users"
)

// Repository persists identities using a Gorm database connection.
type Repository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewRepository constructs a Gorm-backed identity repository.
func NewRepository(db *gorm.DB, logger *logrus.Logger) (*Repository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &Repository{db: db, logger: logger}, nil
}

var _ domainusers.Repository = (*Repository)(nil)

// Get returns the identity registered for cookie with its edit references, or nil.
func (r *Repository) Get(ctx context.Context, cookie string) (*domainusers.Identity, error) {
	return r.first(ctx, "cookie = ?", cookie)
}

// GetByShortID returns the identity with the given public id, or nil.
func (r *Repository) GetByShortID(ctx context.Context, shortID string) (*domainusers.Identity, error) {
	return r.first(ctx, "short_id = ?", shortID)
}

func (r *Repository) first(ctx context.Context, condition string, value string) (*domainusers.Identity, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, eris.New("identity key is required")
	}

	var record IdentityRecord
	err := r.db.WithContext(ctx).
		Preload("Edits", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&record, condition, trimmed).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(nil, err, "fetching identity")
		return nil, errs.StoreFailure(err, "fetching identity")
	}

	return toDomainIdentity(&record), nil
}

// Create inserts the identity unless the cookie is already registered. It
// reports whether a row was written.
func (r *Repository) Create(ctx context.Context, identity *domainusers.Identity) (bool, error) {
	if identity == nil {
		return false, eris.New("identity is nil")
	}

	cookie := strings.TrimSpace(identity.Cookie)
	if cookie == "" {
		return false, eris.New("identity cookie is required")
	}

	record := &IdentityRecord{
		Cookie:          cookie,
		ShortID:         identity.ShortID,
		IsAllowed:       identity.Allowed,
		RegisteredAt:    identity.RegisteredAt.UTC(),
		ProfileMarkdown: identity.ProfileMarkdown,
		ProfileHTML:     identity.ProfileHTML,
	}

	result := r.db.WithContext(ctx).
		Omit("Edits").
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "cookie"}}, DoNothing: true}).
		Create(record)
	if result.Error != nil {
		r.logError(logrus.Fields{"short_id": identity.ShortID}, result.Error, "creating identity")
		return false, errs.StoreFailure(result.Error, "creating identity")
	}

	return result.RowsAffected > 0, nil
}

// SetAllowed flips the moderation flag of the identity with shortID. It
// returns nil when no identity matches.
func (r *Repository) SetAllowed(ctx context.Context, shortID string, allowed bool) (*domainusers.Identity, error) {
	trimmed := strings.TrimSpace(shortID)

	result := r.db.WithContext(ctx).
		Model(&IdentityRecord{}).
		Where("short_id = ?", trimmed).
		Update("is_allowed", allowed)
	if result.Error != nil {
		r.logError(logrus.Fields{"short_id": trimmed}, result.Error, "updating identity permission")
		return nil, errs.StoreFailure(result.Error, "updating identity permission")
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return r.GetByShortID(ctx, trimmed)
}

// AppendEdit adds an edit reference at the end of the identity's edit list.
func (r *Repository) AppendEdit(ctx context.Context, cookie string, ref domainusers.EditRef) error {
	trimmed := strings.TrimSpace(cookie)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&IdentityRecord{}).Where("cookie = ?", trimmed).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return eris.Wrap(errs.ErrNotFound, "identity is not registered")
		}

		return tx.Create(&IdentityEditRecord{
			Cookie:   trimmed,
			EditUID:  ref.EditID.String(),
			PageName: ref.PageName,
			EditedAt: ref.EditedAt.UTC(),
		}).Error
	})
	if err != nil {
		if eris.Is(err, errs.ErrNotFound) {
			return err
		}
		r.logError(logrus.Fields{"page": ref.PageName}, err, "appending identity edit")
		return errs.StoreFailure(err, "appending identity edit")
	}

	return nil
}

// UpdateProfile stores the personal page text of an identity.
func (r *Repository) UpdateProfile(ctx context.Context, cookie, markdown, html string) error {
	trimmed := strings.TrimSpace(cookie)

	result := r.db.WithContext(ctx).
		Model(&IdentityRecord{}).
		Where("cookie = ?", trimmed).
		Updates(map[string]interface{}{"profile_markdown": markdown, "profile_html": html})
	if result.Error != nil {
		r.logError(nil, result.Error, "updating identity profile")
		return errs.StoreFailure(result.Error, "updating identity profile")
	}
	if result.RowsAffected == 0 {
		return eris.Wrap(errs.ErrNotFound, "identity is not registered")
	}

	return nil
}

// List returns every identity ordered by registration time with its edit
// count. Edit references are not loaded.
func (r *Repository) List(ctx context.Context) ([]domainusers.Identity, error) {
	var records []IdentityRecord
	if err := r.db.WithContext(ctx).Order("registered_at ASC").Order("cookie ASC").Find(&records).Error; err != nil {
		r.logError(nil, err, "listing identities")
		return nil, errs.StoreFailure(err, "listing identities")
	}

	type editCount struct {
		Cookie string
		Total  int
	}
	var counts []editCount
	err := r.db.WithContext(ctx).
		Model(&IdentityEditRecord{}).
		Select("cookie, COUNT(*) AS total").
		Group("cookie").
		Scan(&counts).Error
	if err != nil {
		r.logError(nil, err, "counting identity edits")
		return nil, errs.StoreFailure(err, "counting identity edits")
	}

	totals := make(map[string]int, len(counts))
	for _, count := range counts {
		totals[count.Cookie] = count.Total
	}

	identities := make([]domainusers.Identity, 0, len(records))
	for idx := range records {
		identity := toDomainIdentity(&records[idx])
		identity.EditCount = totals[records[idx].Cookie]
		identities = append(identities, *identity)
	}

	return identities, nil
}

// PurgeIdle deletes identities that are blocked, never edited and registered
// before the cutoff. It returns the number of identities removed.
func (r *Repository) PurgeIdle(ctx context.Context, registeredBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("is_allowed = ?", false).
		Where("registered_at < ?", registeredBefore.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM identity_edits WHERE identity_edits.cookie = identities.cookie)").
		Where("NOT EXISTS (SELECT 1 FROM edits WHERE edits.editor_cookie = identities.cookie)").
		Delete(&IdentityRecord{})
	if result.Error != nil {
		r.logError(nil, result.Error, "purging idle identities")
		return 0, errs.StoreFailure(result.Error, "purging idle identities")
	}

	return result.RowsAffected, nil
}

func (r *Repository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil || err == nil {
		return
	}

	entry := r.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}

func toDomainIdentity(record *IdentityRecord) *domainusers.Identity {
	identity := &domainusers.Identity{
		Cookie:          record.Cookie,
		ShortID:         record.ShortID,
		Allowed:         record.IsAllowed,
		RegisteredAt:    record.RegisteredAt.UTC(),
		ProfileMarkdown: record.ProfileMarkdown,
		ProfileHTML:     record.ProfileHTML,
	}

	if len(record.Edits) > 0 {
		identity.Edits = make([]domainusers.EditRef, 0, len(record.Edits))
		for _, edit := range record.Edits {
			id, err := uuid.Parse(edit.EditUID)
			if err != nil {
				id = uuid.Nil
			}
			identity.Edits = append(identity.Edits, domainusers.EditRef{
				EditID:   id,
				PageName: edit.PageName,
				EditedAt: edit.EditedAt.UTC(),
			})
		}
		identity.EditCount = len(identity.Edits)
	}

	return identity
}
