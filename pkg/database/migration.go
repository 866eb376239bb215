package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

type MigrationConfig struct {
	// Migrations is the embedded migration set. MigrationFolderPath, when set,
	// takes precedence so operators can ship migrations outside the binary.
	Migrations          fs.FS
	MigrationFolderPath string
	Version             uint
	Force               int
	AutoRollback        bool // roll a dirty database back to the previous version when a migration fails
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

func (ms *MigrationService) source() (fs.FS, error) {
	if ms.config.MigrationFolderPath != "" {
		if _, err := os.Stat(ms.config.MigrationFolderPath); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", ms.config.MigrationFolderPath))
		}
		return os.DirFS(ms.config.MigrationFolderPath), nil
	}
	if ms.config.Migrations == nil {
		return nil, errors.New("no migrations configured")
	}
	return ms.config.Migrations, nil
}

// Migrate applies migrations to the database at dsn. It opens its own
// connection because the migrate driver closes the connection it is given.
func (ms *MigrationService) Migrate(driverName, dsn string) error {
	migrations, err := ms.source()
	if err != nil {
		return err
	}

	sourceDriver, err := iofs.New(migrations, ".")
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return errors.Wrap(err, "failed to open migration connection")
	}

	var databaseInstance migratedb.Driver
	switch driverName {
	case DriverSQLite:
		databaseInstance, err = sqlite.WithInstance(conn, &sqlite.Config{})
	case DriverPostgres:
		databaseInstance, err = postgres.WithInstance(conn, &postgres.Config{})
	default:
		err = fmt.Errorf("unsupported migration driver %q", driverName)
	}
	if err != nil {
		_ = conn.Close()
		ms.logger.WithError(err).Error("Failed to create migration driver")
		return err
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driverName, databaseInstance)
	if err != nil {
		_ = databaseInstance.Close()
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	defer m.Close()

	m.Log = MigrationLogger{Logger: ms.logger}

	return ms.runMigration(m, migrations)
}

func (ms *MigrationService) runMigration(m *migrate.Migrate, migrations fs.FS) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	version, _, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
	}

	startTime := time.Now()

	var migrationErr error
	if ms.config.Version != 0 {
		migrationErr = m.Migrate(ms.config.Version)
	} else {
		migrationErr = m.Up()
	}

	ms.logger.Infof("Database migrations completed in %v", time.Since(startTime))

	return ms.handleMigrationError(m, migrations, migrationErr, version)
}

func (ms *MigrationService) handleMigrationError(m *migrate.Migrate, migrations fs.FS, err error, previousVersion uint) error {
	if err == nil {
		ms.logger.Info("Successfully applied migrations")
		return nil
	}

	if err == migrate.ErrNoChange {
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	// The database is ahead of the shipped migrations, usually after a rollback
	// of the binary.
	if strings.Contains(err.Error(), "no migration found for version") {
		latest, latestErr := getLatestVersion(migrations)
		if latestErr != nil {
			ms.logger.WithError(latestErr).Error("Failed to get latest migration version")
			return latestErr
		}
		ms.logger.Warnf("No migration found for version %d. Forcing latest version %d", previousVersion, latest)
		if forceErr := m.Force(latest); forceErr != nil {
			ms.logger.WithError(forceErr).Errorf("Failed to force database to version %d", latest)
			return forceErr
		}
		return nil
	}

	ms.logger.WithError(err).Errorf("Migration failed with error: %v", err)

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
		return err
	}

	if ms.config.AutoRollback && dirty {
		if previousVersion == 0 && version > 0 {
			previousVersion = version - 1
		}
		ms.logger.Warnf("Database is dirty at version %d. Reverting to version %d", version, previousVersion)
		if forceErr := m.Force(int(previousVersion)); forceErr != nil {
			ms.logger.WithError(forceErr).Errorf("Failed to force database to version %d", previousVersion)
			return forceErr
		}
	}

	// Still fail so a half-migrated database never serves traffic.
	return err
}

var migrationFilePattern = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

func getLatestVersion(migrations fs.FS) (int, error) {
	files, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return 0, err
	}

	var versions []int
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := migrationFilePattern.FindStringSubmatch(file.Name())
		if len(matches) > 1 {
			version, err := strconv.Atoi(matches[1])
			if err != nil {
				return 0, err
			}
			versions = append(versions, version)
		}
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found")
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
