// Package recordingstore 在 sqlite 中保存录制文件夹、录制元数据以及会议室与文件夹的对应关系
package recordingstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/shongo-go/connector/src/consts"
	"github.com/shongo-go/connector/src/pkg/migration"
	"github.com/shongo-go/connector/src/types"
)

// Folder 录制文件夹
type Folder struct {
	ID          string
	Name        string
	Created     time.Time
	Permissions map[string]types.RecordingFolderPermission
}

// Recording 已知录制的元数据，Metadata 为设备返回的原始描述
type Recording struct {
	FolderID string
	FileID   string
	DeviceID string
	FileName string
	Metadata []byte
	// Moved 录制文件已经保存到本地存储
	Moved   bool
	Updated time.Time
}

type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open 打开数据库并迁移到最新版本
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", dbPath, err)
	}
	if err := s.updateVersionInfo(); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite 只允许一个写连接
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *Store) migrate() error {
	migrator, err := migration.NewMigrator(s.db, s.dbPath, Schema)
	if err != nil {
		return err
	}
	recovered, err := migrator.CheckAndRecover()
	if err != nil {
		logrus.WithError(err).Warn("migration recovery check failed")
	}
	if recovered {
		s.db.Close()
		if s.db, err = open(s.dbPath); err != nil {
			return err
		}
		if migrator, err = migration.NewMigrator(s.db, s.dbPath, Schema); err != nil {
			return err
		}
	}
	_, err = migrator.Run()
	return err
}

func (s *Store) updateVersionInfo() error {
	_, err := s.db.Exec(`
		INSERT INTO system_meta (key, value) VALUES ('app_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, consts.AppVersion)
	if err != nil {
		return fmt.Errorf("failed to update version info: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateFolder 文件夹已存在时只更新名称和权限
func (s *Store) CreateFolder(ctx context.Context, f *Folder) error {
	if f.ID == "" {
		return errors.New("folder id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	created := f.Created
	if created.IsZero() {
		created = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO recording_folders (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, f.ID, f.Name, created.Unix())
	if err != nil {
		return fmt.Errorf("failed to create folder %s: %w", f.ID, err)
	}
	if err := setPermissions(ctx, tx, f.ID, f.Permissions); err != nil {
		return err
	}
	return tx.Commit()
}

// SetPermissions 替换文件夹的全部权限
func (s *Store) SetPermissions(ctx context.Context, folderID string, permissions map[string]types.RecordingFolderPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM recording_folders WHERE id = ?", folderID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return types.NotFound("recording folder", folderID)
	}
	if err := setPermissions(ctx, tx, folderID, permissions); err != nil {
		return err
	}
	return tx.Commit()
}

func setPermissions(ctx context.Context, tx *sql.Tx, folderID string, permissions map[string]types.RecordingFolderPermission) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM recording_folder_permissions WHERE folder_id = ?", folderID); err != nil {
		return err
	}
	for user, permission := range permissions {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO recording_folder_permissions (folder_id, user_id, permission) VALUES (?, ?, ?)",
			folderID, user, string(permission))
		if err != nil {
			return fmt.Errorf("failed to set permission of %s: %w", user, err)
		}
	}
	return nil
}

func (s *Store) GetFolder(ctx context.Context, id string) (*Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := &Folder{ID: id, Permissions: make(map[string]types.RecordingFolderPermission)}
	var created int64
	err := s.db.QueryRowContext(ctx, "SELECT name, created_at FROM recording_folders WHERE id = ?", id).
		Scan(&f.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("recording folder", id)
	}
	if err != nil {
		return nil, err
	}
	f.Created = time.Unix(created, 0)
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, permission FROM recording_folder_permissions WHERE folder_id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var user, permission string
		if err := rows.Scan(&user, &permission); err != nil {
			return nil, err
		}
		f.Permissions[user] = types.RecordingFolderPermission(permission)
	}
	return f, rows.Err()
}

// FolderIDs 返回所有已知的文件夹 ID
func (s *Store) FolderIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM recording_folders")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// DeleteFolder 同时删除文件夹内的录制记录
func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM recordings WHERE folder_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM recording_folders WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// PutRecording 创建或覆盖录制记录
func (s *Store) PutRecording(ctx context.Context, r *Recording) error {
	if r.FolderID == "" || r.FileID == "" {
		return errors.New("folder id and file id must be filled")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := 0
	if r.Moved {
		moved = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (folder_id, file_id, device_id, file_name, metadata, moved, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder_id, file_id) DO UPDATE SET
			device_id = excluded.device_id,
			file_name = excluded.file_name,
			metadata = excluded.metadata,
			moved = excluded.moved,
			updated_at = excluded.updated_at
	`, r.FolderID, r.FileID, r.DeviceID, r.FileName, r.Metadata, moved, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store recording %s/%s: %w", r.FolderID, r.FileID, err)
	}
	return nil
}

const recordingColumns = "folder_id, file_id, device_id, file_name, metadata, moved, updated_at"

func scanRecording(row interface{ Scan(...any) error }) (*Recording, error) {
	var (
		r       Recording
		moved   int
		updated int64
	)
	if err := row.Scan(&r.FolderID, &r.FileID, &r.DeviceID, &r.FileName, &r.Metadata, &moved, &updated); err != nil {
		return nil, err
	}
	r.Moved = moved != 0
	r.Updated = time.Unix(updated, 0)
	return &r, nil
}

func (s *Store) GetRecording(ctx context.Context, folderID, fileID string) (*Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordingColumns+" FROM recordings WHERE folder_id = ? AND file_id = ?", folderID, fileID)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("recording", folderID+"/"+fileID)
	}
	return r, err
}

// ListRecordings 按文件 ID 排序
func (s *Store) ListRecordings(ctx context.Context, folderID string) ([]*Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordingColumns+" FROM recordings WHERE folder_id = ? ORDER BY file_id", folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recordings := []*Recording{}
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, r)
	}
	return recordings, rows.Err()
}

func (s *Store) DeleteRecording(ctx context.Context, folderID, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE folder_id = ? AND file_id = ?", folderID, fileID)
	return err
}

// SetRoomFolder 记录会议室的录制应放入的文件夹，folderID 为空时删除
func (s *Store) SetRoomFolder(ctx context.Context, connectorName, roomID, folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if folderID == "" {
		_, err := s.db.ExecContext(ctx, "DELETE FROM room_folders WHERE connector = ? AND room_id = ?", connectorName, roomID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_folders (connector, room_id, folder_id) VALUES (?, ?, ?)
		ON CONFLICT(connector, room_id) DO UPDATE SET folder_id = excluded.folder_id
	`, connectorName, roomID, folderID)
	return err
}

// RoomFolder 没有对应的文件夹时返回空字符串
func (s *Store) RoomFolder(ctx context.Context, connectorName, roomID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var folderID string
	err := s.db.QueryRowContext(ctx,
		"SELECT folder_id FROM room_folders WHERE connector = ? AND room_id = ?", connectorName, roomID).Scan(&folderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return folderID, err
}
