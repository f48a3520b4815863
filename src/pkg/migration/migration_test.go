package migration

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testSchema(critical bool) *Schema {
	return &Schema{
		Name: "test",
		FS: fstest.MapFS{
			"migrations/000001_init.up.sql":    {Data: []byte("CREATE TABLE folders (id TEXT PRIMARY KEY);")},
			"migrations/000001_init.down.sql":  {Data: []byte("DROP TABLE folders;")},
			"migrations/000002_names.up.sql":   {Data: []byte("ALTER TABLE folders ADD COLUMN name TEXT;")},
			"migrations/000002_names.down.sql": {Data: []byte("ALTER TABLE folders DROP COLUMN name;")},
		},
		Dir:      "migrations",
		Critical: critical,
	}
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrator_Run(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db := openDB(t, dbPath)
	m, err := NewMigrator(db, dbPath, testSchema(false))
	require.NoError(t, err)

	version, _, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	result, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, uint(2), result.ToVersion)
	assert.Empty(t, result.BackupPath)

	_, err = db.Exec("INSERT INTO folders (id, name) VALUES ('a', 'b')")
	require.NoError(t, err)

	// 已是最新版本
	result, err = m.Run()
	require.NoError(t, err)
	assert.Equal(t, uint(2), result.FromVersion)
	assert.Equal(t, uint(2), result.ToVersion)
}

func TestMigrator_CriticalBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db := openDB(t, dbPath)
	_, err := db.Exec("CREATE TABLE other (x INTEGER)")
	require.NoError(t, err)

	m, err := NewMigrator(db, dbPath, testSchema(true))
	require.NoError(t, err)
	result, err := m.Run()
	require.NoError(t, err)
	assert.NotEmpty(t, result.BackupPath)
	assert.FileExists(t, result.BackupPath)
	assert.NoFileExists(t, dbPath+lockFileExtension)
}

func TestMigrator_Locked(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db := openDB(t, dbPath)
	m, err := NewMigrator(db, dbPath, testSchema(true))
	require.NoError(t, err)

	require.NoError(t, m.writeLock("", 0))
	_, err = m.Run()
	assert.True(t, errors.Is(err, ErrLocked))

	recovered, err := m.CheckAndRecover()
	require.NoError(t, err)
	assert.True(t, recovered)
	recovered, err = m.CheckAndRecover()
	require.NoError(t, err)
	assert.False(t, recovered)

	_, err = m.Run()
	assert.NoError(t, err)
}

func TestNewMigrator_Invalid(t *testing.T) {
	db := openDB(t, filepath.Join(t.TempDir(), "x.db"))
	_, err := NewMigrator(nil, "x.db", testSchema(false))
	assert.Error(t, err)
	_, err = NewMigrator(db, "", testSchema(false))
	assert.Error(t, err)
	_, err = NewMigrator(db, "x.db", nil)
	assert.Error(t, err)
}

func TestBackupManager(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	bm := NewBackupManager(dbPath)

	// 不存在的文件不需要备份
	backupPath, err := bm.CreateBackup()
	require.NoError(t, err)
	assert.Empty(t, backupPath)

	require.NoError(t, os.WriteFile(dbPath, []byte("v1"), 0644))
	backupPath, err = bm.CreateBackup()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dbPath, []byte("v2"), 0644))

	require.NoError(t, bm.RestoreBackup(backupPath))
	content, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))
	assert.Error(t, bm.RestoreBackup(""))
}

func TestBackupManager_Cleanup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < maxBackupCount+3; i++ {
		backup := dbPath + backupSuffix + "20260101_00000" + string(rune('0'+i))
		require.NoError(t, os.WriteFile(backup, []byte("backup"), 0644))
	}
	bm := NewBackupManager(dbPath)
	list, err := bm.ListBackups()
	require.NoError(t, err)
	assert.Len(t, list, maxBackupCount+3)
	assert.Equal(t, dbPath+backupSuffix+"20260101_000007", list[0])

	require.NoError(t, bm.cleanup())
	list, err = bm.ListBackups()
	require.NoError(t, err)
	assert.Len(t, list, maxBackupCount)
	assert.Equal(t, dbPath+backupSuffix+"20260101_000007", list[0])
}
