package wiki

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wikiloult/app/internal/domain/errs"
	domainwiki "wikiloult/app/internal/domain/wiki"
)

const (
	titleWeight    = 10
	markdownWeight = 5
	nameWeight     = 7
)

// Repository persists wiki pages and their edit history using a Gorm database connection.
type Repository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewRepository constructs a Gorm-backed repository implementation.
func NewRepository(db *gorm.DB, logger *logrus.Logger) (*Repository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &Repository{db: db, logger: logger}, nil
}

var _ domainwiki.Repository = (*Repository)(nil)

// GetByName returns the page projection for name or nil when not found.
func (r *Repository) GetByName(ctx context.Context, name string) (*domainwiki.Page, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, eris.New("page name is required")
	}

	var record PageRecord
	err := r.db.WithContext(ctx).First(&record, "name = ?", trimmed).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"page": trimmed}, err, "fetching page by name")
		return nil, errs.StoreFailure(err, "fetching page "+trimmed)
	}

	return toDomainPage(&record), nil
}

// GetWithHistory returns the page with every edit, oldest first, or nil when not found.
func (r *Repository) GetWithHistory(ctx context.Context, name string) (*domainwiki.Page, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, eris.New("page name is required")
	}

	var record PageRecord
	err := r.db.WithContext(ctx).
		Preload("Edits", func(db *gorm.DB) *gorm.DB {
			return db.Order("edited_at ASC").Order("id ASC")
		}).
		First(&record, "name = ?", trimmed).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"page": trimmed}, err, "fetching page history")
		return nil, errs.StoreFailure(err, "fetching history of page "+trimmed)
	}

	return toDomainPage(&record), nil
}

// Create stores a new page together with its first edit in one transaction.
func (r *Repository) Create(ctx context.Context, page *domainwiki.Page, first *domainwiki.Edit) error {
	if page == nil || first == nil {
		return eris.New("page and first edit are required")
	}

	name := strings.TrimSpace(page.Name)
	if name == "" {
		return eris.New("page name is required")
	}

	pageRecord := &PageRecord{
		Name:       name,
		Title:      page.Title,
		Markdown:   page.Markdown,
		HTML:       page.HTML,
		Revision:   1,
		CreatedAt:  first.EditedAt,
		LastEditAt: first.EditedAt,
	}
	editRecord := toEditRecord(first)
	editRecord.PageName = name

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Edits").Create(pageRecord).Error; err != nil {
			return err
		}
		return tx.Create(editRecord).Error
	})
	if err != nil {
		if isDuplicate(err) {
			return eris.Wrapf(errs.ErrDuplicateName, "page %s already exists", name)
		}
		r.logError(logrus.Fields{"page": name}, err, "creating page")
		return errs.StoreFailure(err, "creating page "+name)
	}

	page.Name = name
	page.Revision = pageRecord.Revision
	first.PageName = name
	first.Seq = int64(editRecord.ID)
	return nil
}

// ApplyEdit updates the page projection and appends the edit in one transaction.
// A positive expectedRevision must match the stored revision.
func (r *Repository) ApplyEdit(ctx context.Context, edit *domainwiki.Edit, html string, expectedRevision int) (*domainwiki.Page, error) {
	if edit == nil {
		return nil, eris.New("edit is nil")
	}

	name := strings.TrimSpace(edit.PageName)
	if name == "" {
		return nil, eris.New("page name is required")
	}

	var stored PageRecord
	editRecord := toEditRecord(edit)
	editRecord.PageName = name

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&PageRecord{}).Where("name = ?", name)
		if expectedRevision > domainwiki.AnyRevision {
			query = query.Where("revision = ?", expectedRevision)
		}

		result := query.Updates(map[string]interface{}{
			"title":        edit.Title,
			"markdown":     edit.Markdown,
			"html":         html,
			"revision":     gorm.Expr("revision + 1"),
			"last_edit_at": edit.EditedAt,
		})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&PageRecord{}).Where("name = ?", name).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return eris.Wrapf(errs.ErrNotFound, "page %s", name)
			}
			return eris.Wrapf(errs.ErrEditConflict, "page %s is no longer at revision %d", name, expectedRevision)
		}

		if err := tx.Create(editRecord).Error; err != nil {
			return err
		}

		return tx.First(&stored, "name = ?", name).Error
	})
	if err != nil {
		if eris.Is(err, errs.ErrNotFound) || eris.Is(err, errs.ErrEditConflict) {
			return nil, err
		}
		r.logError(logrus.Fields{"page": name}, err, "applying page edit")
		return nil, errs.StoreFailure(err, "editing page "+name)
	}

	edit.PageName = name
	edit.Seq = int64(editRecord.ID)
	return toDomainPage(&stored), nil
}

// UpdateHTML replaces the rendered HTML of a page without touching its history.
func (r *Repository) UpdateHTML(ctx context.Context, name, html string) error {
	trimmed := strings.TrimSpace(name)

	result := r.db.WithContext(ctx).Model(&PageRecord{}).Where("name = ?", trimmed).Update("html", html)
	if result.Error != nil {
		r.logError(logrus.Fields{"page": trimmed}, result.Error, "updating page html")
		return errs.StoreFailure(result.Error, "updating html of page "+trimmed)
	}
	if result.RowsAffected == 0 {
		return eris.Wrapf(errs.ErrNotFound, "page %s", trimmed)
	}

	return nil
}

// ListPages returns every page ordered by name.
func (r *Repository) ListPages(ctx context.Context) ([]domainwiki.Page, error) {
	var records []PageRecord

	if err := r.db.WithContext(ctx).Order("name ASC").Find(&records).Error; err != nil {
		r.logError(nil, err, "listing pages")
		return nil, errs.StoreFailure(err, "listing pages")
	}

	pages := make([]domainwiki.Page, 0, len(records))
	for idx := range records {
		pages = append(pages, *toDomainPage(&records[idx]))
	}

	return pages, nil
}

// CountPages returns the total number of persisted wiki pages.
func (r *Repository) CountPages(ctx context.Context) (int64, error) {
	var count int64

	if err := r.db.WithContext(ctx).Model(&PageRecord{}).Count(&count).Error; err != nil {
		r.logError(nil, err, "counting pages")
		return 0, errs.StoreFailure(err, "counting pages")
	}

	return count, nil
}

// RandomPage returns a single random page or nil when the table is empty.
func (r *Repository) RandomPage(ctx context.Context) (*domainwiki.Page, error) {
	var record PageRecord

	if err := r.db.WithContext(ctx).Order("RANDOM()").First(&record).Error; err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(nil, err, "selecting random page")
		return nil, errs.StoreFailure(err, "selecting random page")
	}

	return toDomainPage(&record), nil
}

type scoredName struct {
	Name  string
	Score int
}

// Search scores every page against the lowercased terms: each term found in
// the title adds 10, in the name 7, in the markdown 5.
func (r *Repository) Search(ctx context.Context, terms []string, limit int) ([]domainwiki.SearchHit, error) {
	clauses := make([]string, 0, len(terms)*3)
	args := make([]interface{}, 0, len(terms)*3)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		pattern := "%" + escapeLike(term) + "%"
		clauses = append(clauses,
			likeScore("title", titleWeight),
			likeScore("markdown", markdownWeight),
			likeScore("name", nameWeight),
		)
		args = append(args, pattern, pattern, pattern)
	}
	if len(clauses) == 0 {
		return []domainwiki.SearchHit{}, nil
	}

	inner := r.db.WithContext(ctx).
		Model(&PageRecord{}).
		Select("name, title, ("+strings.Join(clauses, " + ")+") AS score", args...)

	query := r.db.WithContext(ctx).
		Table("(?) AS scored", inner).
		Select("name, score").
		Where("score > 0").
		Order("score DESC").
		Order("title ASC").
		Order("name ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var scored []scoredName
	if err := query.Scan(&scored).Error; err != nil {
		r.logError(logrus.Fields{"terms": terms}, err, "searching pages")
		return nil, errs.StoreFailure(err, "searching pages")
	}
	if len(scored) == 0 {
		return []domainwiki.SearchHit{}, nil
	}

	names := make([]string, 0, len(scored))
	for _, row := range scored {
		names = append(names, row.Name)
	}

	var records []PageRecord
	if err := r.db.WithContext(ctx).Where("name IN ?", names).Find(&records).Error; err != nil {
		r.logError(logrus.Fields{"terms": terms}, err, "loading search hits")
		return nil, errs.StoreFailure(err, "loading search hits")
	}

	byName := make(map[string]*PageRecord, len(records))
	for idx := range records {
		byName[records[idx].Name] = &records[idx]
	}

	hits := make([]domainwiki.SearchHit, 0, len(scored))
	for _, row := range scored {
		record, ok := byName[row.Name]
		if !ok {
			continue
		}
		hits = append(hits, domainwiki.SearchHit{Page: *toDomainPage(record), Score: row.Score})
	}

	return hits, nil
}

// RecentEdits lists edits across all pages, newest first.
func (r *Repository) RecentEdits(ctx context.Context, offset, limit int) ([]domainwiki.Edit, error) {
	query := r.db.WithContext(ctx).Order("edited_at DESC").Order("id DESC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []EditRecord
	if err := query.Find(&records).Error; err != nil {
		r.logError(logrus.Fields{"offset": offset, "limit": limit}, err, "listing recent edits")
		return nil, errs.StoreFailure(err, "listing recent edits")
	}

	return toDomainEdits(records), nil
}

// EditsByEditor lists the edits authored by cookie, newest first.
func (r *Repository) EditsByEditor(ctx context.Context, cookie string) ([]domainwiki.Edit, error) {
	var records []EditRecord

	err := r.db.WithContext(ctx).
		Where("editor_cookie = ?", cookie).
		Order("edited_at DESC").
		Order("id DESC").
		Find(&records).Error
	if err != nil {
		r.logError(nil, err, "listing edits by editor")
		return nil, errs.StoreFailure(err, "listing edits by editor")
	}

	return toDomainEdits(records), nil
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

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique")
}

func likeScore(column string, weight int) string {
	return fmt.Sprintf("(CASE WHEN lower(%s) LIKE ? ESCAPE '\\' THEN %d ELSE 0 END)", column, weight)
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

func toEditRecord(edit *domainwiki.Edit) *EditRecord {
	id := edit.ID
	if id == uuid.Nil {
		id = uuid.New()
		edit.ID = id
	}

	return &EditRecord{
		UID:          id.String(),
		PageName:     edit.PageName,
		EditorCookie: edit.EditorCookie,
		Title:        edit.Title,
		Markdown:     edit.Markdown,
		EditedAt:     edit.EditedAt.UTC(),
	}
}

func toDomainPage(record *PageRecord) *domainwiki.Page {
	if record == nil {
		return nil
	}

	page := &domainwiki.Page{
		Name:       record.Name,
		Title:      record.Title,
		Markdown:   record.Markdown,
		HTML:       record.HTML,
		Revision:   record.Revision,
		CreatedAt:  record.CreatedAt.UTC(),
		LastEditAt: record.LastEditAt.UTC(),
	}
	if len(record.Edits) > 0 {
		page.Edits = toDomainEdits(record.Edits)
	}

	return page
}

func toDomainEdits(records []EditRecord) []domainwiki.Edit {
	edits := make([]domainwiki.Edit, 0, len(records))
	for _, record := range records {
		id, err := uuid.Parse(record.UID)
		if err != nil {
			id = uuid.Nil
		}
		edits = append(edits, domainwiki.Edit{
			ID:           id,
			Seq:          int64(record.ID),
			PageName:     record.PageName,
			EditorCookie: record.EditorCookie,
			Title:        record.Title,
			Markdown:     record.Markdown,
			EditedAt:     record.EditedAt.UTC(),
		})
	}
	return edits
}
