// Package migrations applies the relational schema of the wiki store.
package migrations

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	usersdata "wikiloult/app/internal/data/users"
	wikidata "wikiloult/app/internal/data/wiki"
)

// Migrate applies every schema the application needs.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if err := MigrateWiki(ctx, db, logger); err != nil {
		return err
	}
	return MigrateUsers(ctx, db, logger)
}

// MigrateWiki applies the page and edit schema using Gorm's AutoMigrate and logs progress.
func MigrateWiki(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	return migrate(ctx, db, logger, "wiki", &wikidata.PageRecord{}, &wikidata.EditRecord{})
}

// MigrateUsers applies the identity registry schema.
func MigrateUsers(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	return migrate(ctx, db, logger, "users", &usersdata.IdentityRecord{}, &usersdata.IdentityEditRecord{})
}

func migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger, schema string, models ...interface{}) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": schema + ".migrate"}
	if logger != nil {
		logger.WithFields(logFields).Info("applying " + schema + " schema")
	}

	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error(schema + " schema migration failed")
		}
		return eris.Wrapf(err, "auto migrating %s schema", schema)
	}

	if logger != nil {
		logger.WithFields(logFields).Info(schema + " schema migration complete")
	}

	return nil
}
