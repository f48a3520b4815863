// Package migration 使用 golang-migrate 对 sqlite 数据库执行嵌入式迁移
package migration

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

var (
	ErrMigrationFailed = errors.New("migration failed")
	// ErrLocked 上一次迁移没有正常结束
	ErrLocked = errors.New("database is locked by another migration")
)

const lockFileExtension = ".migration.lock"

// Schema 一类数据库的迁移定义
type Schema struct {
	Name string
	// FS 中 Dir 目录下为 golang-migrate 格式的 *.up.sql/*.down.sql
	FS  fs.FS
	Dir string
	// Critical 为 true 时迁移前备份，失败时从备份恢复
	Critical bool
}

type Result struct {
	FromVersion uint
	ToVersion   uint
	WasDirty    bool
	BackupPath  string
}

// lockInfo 迁移期间写入锁文件，进程崩溃后用于恢复
type lockInfo struct {
	BackupPath  string `json:"backup_path"`
	StartTime   string `json:"start_time"`
	FromVersion uint   `json:"from_version"`
	PID         int    `json:"pid"`
	Schema      string `json:"schema"`
}

type Migrator struct {
	dbPath   string
	schema   *Schema
	db       *sql.DB
	backups  *BackupManager
	lockPath string
	logger   *logrus.Entry
}

// NewMigrator db 为已打开的连接，迁移不会关闭它
func NewMigrator(db *sql.DB, dbPath string, schema *Schema) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if dbPath == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if schema == nil || schema.FS == nil {
		return nil, errors.New("schema cannot be nil")
	}
	return &Migrator{
		dbPath:   dbPath,
		schema:   schema,
		db:       db,
		backups:  NewBackupManager(dbPath),
		lockPath: dbPath + lockFileExtension,
		logger:   logrus.WithFields(logrus.Fields{"db_path": dbPath, "schema": schema.Name}),
	}, nil
}

func (m *Migrator) newMigrate() (*migrate.Migrate, error) {
	dir := m.schema.Dir
	if dir == "" {
		dir = "."
	}
	source, err := iofs.New(m.schema.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source: %w", err)
	}
	driver, err := sqlite.WithInstance(m.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "sqlite", driver)
}

// Run 把数据库迁移到最新版本
func (m *Migrator) Run() (*Result, error) {
	if m.locked() {
		info, err := m.readLock()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLocked, err)
		}
		return nil, fmt.Errorf("%w: started at %s (PID: %d)", ErrLocked, info.StartTime, info.PID)
	}
	mig, err := m.newMigrate()
	if err != nil {
		return nil, err
	}
	result := &Result{}
	result.FromVersion, result.WasDirty, _ = mig.Version()

	if m.schema.Critical {
		if result.BackupPath, err = m.backups.CreateBackup(); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		if result.BackupPath != "" {
			if err := m.writeLock(result.BackupPath, result.FromVersion); err != nil {
				_ = m.backups.RemoveBackup(result.BackupPath)
				return nil, err
			}
			defer m.releaseLock()
		}
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if result.BackupPath != "" {
			m.logger.WithError(err).Error("migration failed, restoring backup")
			if rerr := m.backups.RestoreBackup(result.BackupPath); rerr != nil {
				return result, fmt.Errorf("%w: %v (restore also failed: %v)", ErrMigrationFailed, err, rerr)
			}
		}
		return result, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	result.ToVersion, _, _ = mig.Version()
	logger := m.logger.WithFields(logrus.Fields{"from_version": result.FromVersion, "to_version": result.ToVersion})
	if result.FromVersion != result.ToVersion {
		logger.Info("database migrated")
	} else {
		logger.Debug("database schema is up to date")
	}
	return result, nil
}

// CheckAndRecover 发现残留的锁文件时从备份恢复，返回是否进行了恢复。
// 恢复后调用方需要重新打开数据库。
func (m *Migrator) CheckAndRecover() (bool, error) {
	if !m.locked() {
		return false, nil
	}
	info, err := m.readLock()
	if err != nil {
		return false, err
	}
	m.logger.WithFields(logrus.Fields{
		"start_time":  info.StartTime,
		"pid":         info.PID,
		"backup_path": info.BackupPath,
	}).Warn("detected incomplete migration")
	if info.BackupPath != "" {
		if err := m.backups.RestoreBackup(info.BackupPath); err != nil {
			return true, fmt.Errorf("recovery failed: %w", err)
		}
		m.logger.Info("database recovered from backup")
	}
	m.releaseLock()
	return true, nil
}

// Version 返回当前版本，未迁移过的数据库返回 0
func (m *Migrator) Version() (uint, bool, error) {
	mig, err := m.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := mig.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (m *Migrator) locked() bool {
	_, err := os.Stat(m.lockPath)
	return err == nil
}

func (m *Migrator) writeLock(backupPath string, from uint) error {
	data, err := json.Marshal(lockInfo{
		BackupPath:  backupPath,
		StartTime:   time.Now().Format(time.RFC3339),
		FromVersion: from,
		PID:         os.Getpid(),
		Schema:      m.schema.Name,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.lockPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.lockPath, data, 0644)
}

func (m *Migrator) readLock() (*lockInfo, error) {
	data, err := os.ReadFile(m.lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &info, nil
}

func (m *Migrator) releaseLock() {
	if err := os.Remove(m.lockPath); err != nil && !os.IsNotExist(err) {
		m.logger.WithError(err).Warn("failed to remove migration lock")
	}
}
