package settings

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// pluginRow is the SQL representation of a PluginRecord. Position keeps the
// registry order.
type pluginRow struct {
	ID            uint   `gorm:"primaryKey"`
	Position      int    `gorm:"index;not null"`
	Name          string `gorm:"size:255;uniqueIndex;not null"`
	Enabled       bool   `gorm:"not null"`
	BackendEntry  string `gorm:"size:1024"`
	FrontendEntry string `gorm:"size:1024"`
}

func (pluginRow) TableName() string {
	return "plugin_records"
}

// SQLPersister stores the registry in the plugin_records table.
type SQLPersister struct {
	db *gorm.DB
}

// OpenSQL connects with the named driver (sqlite, postgres or mysql) and
// migrates the plugin_records table.
func OpenSQL(driver, dsn string) (*SQLPersister, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrPersistence, driver, err)
	}
	if err := db.AutoMigrate(&pluginRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate plugin_records: %w", ErrPersistence, err)
	}
	return NewSQLPersister(db), nil
}

// NewSQLPersister wraps an existing gorm handle. The table must exist.
func NewSQLPersister(db *gorm.DB) *SQLPersister {
	return &SQLPersister{db: db}
}

// Load reads all rows ordered by position.
func (p *SQLPersister) Load(ctx context.Context) ([]PluginRecord, error) {
	var rows []pluginRow
	if err := p.db.WithContext(ctx).Order("position asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: query plugin_records: %w", ErrPersistence, err)
	}

	records := make([]PluginRecord, len(rows))
	for i, row := range rows {
		records[i] = PluginRecord{
			Name:          row.Name,
			Enabled:       row.Enabled,
			BackendEntry:  row.BackendEntry,
			FrontendEntry: row.FrontendEntry,
		}
	}
	return records, nil
}

// Save replaces every row inside one transaction.
func (p *SQLPersister) Save(ctx context.Context, records []PluginRecord) error {
	rows := make([]pluginRow, len(records))
	for i, r := range records {
		rows[i] = pluginRow{
			Position:      i,
			Name:          r.Name,
			Enabled:       r.Enabled,
			BackendEntry:  r.BackendEntry,
			FrontendEntry: r.FrontendEntry,
		}
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&pluginRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("%w: save plugin_records: %w", ErrPersistence, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (p *SQLPersister) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
