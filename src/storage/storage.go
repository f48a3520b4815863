// Package storage 本地录制存储：文件夹即目录，支持断点续传写入和剩余空间检查
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/types"
)

const (
	// 读取中断后重新打开数据源的次数
	maxResumes  = 5
	resumeDelay = 100 * time.Millisecond
	copyBufSize = 64 * 1024

	deleteWaitInterval = 50 * time.Millisecond
)

var (
	ErrFileExists    = errors.New("file already exists")
	ErrFolderDeleted = errors.New("folder is being deleted")
	ErrInvalidName   = errors.New("invalid name")
)

// Reopen 从 offset 处重新打开数据源，用于读取中断后续传
type Reopen func(ctx context.Context, offset int64) (io.ReadCloser, error)

type Storage struct {
	root            string
	downloadURLBase string
	minFreeSpace    int64
	usage           func(path string) (*disk.UsageStat, error)

	mu       sync.Mutex
	deleting map[string]struct{}
	creating map[string]int
}

// New root 必须是已存在的目录
func New(root, downloadURLBase string, minFreeSpace int64) (*Storage, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("storage root %s: %w", root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", root)
	}
	return &Storage{
		root:            root,
		downloadURLBase: strings.TrimSuffix(downloadURLBase, "/"),
		minFreeSpace:    minFreeSpace,
		usage:           disk.Usage,
		deleting:        make(map[string]struct{}),
		creating:        make(map[string]int),
	}, nil
}

func (s *Storage) Root() string {
	return s.root
}

// MangleName 文件夹名称中的 ":" 替换为 "_"
func MangleName(name string) string {
	return strings.ReplaceAll(name, ":", "_")
}

func checkName(name string) error {
	if name == "" || name == "." || filepath.Base(name) != name || !filepath.IsLocal(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

func (s *Storage) folderPath(folderID string) (string, error) {
	if err := checkName(folderID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, folderID), nil
}

func (s *Storage) filePath(folderID, fileName string) (string, error) {
	dir, err := s.folderPath(folderID)
	if err != nil {
		return "", err
	}
	if err := checkName(fileName); err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// CreateFolder 创建文件夹并返回其 ID，已存在时直接返回
func (s *Storage) CreateFolder(name string) (string, error) {
	id := MangleName(name)
	dir, err := s.folderPath(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", id, err)
	}
	return id, nil
}

func (s *Storage) FolderExists(folderID string) bool {
	dir, err := s.folderPath(folderID)
	if err != nil {
		return false
	}
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}

// ListFolders 按名称排序
func (s *Storage) ListFolders() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	return folders, nil
}

// DeleteFolder 等待文件夹内正在写入的文件结束后递归删除
func (s *Storage) DeleteFolder(ctx context.Context, folderID string) error {
	dir, err := s.folderPath(folderID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.deleting[folderID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.deleting, folderID)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(deleteWaitInterval)
	defer ticker.Stop()
	for s.creatingCount(folderID) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete folder %s: %w", folderID, err)
	}
	return nil
}

func (s *Storage) creatingCount(folderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creating[folderID]
}

func (s *Storage) isDeleting(folderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.deleting[folderID]
	return ok
}

func (s *Storage) beginCreate(folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deleting[folderID]; ok {
		return fmt.Errorf("%s: %w", folderID, ErrFolderDeleted)
	}
	s.creating[folderID]++
	return nil
}

func (s *Storage) endCreate(folderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creating[folderID]--; s.creating[folderID] <= 0 {
		delete(s.creating, folderID)
	}
}

// CreateFile 将 r 的内容写入新文件，读取失败时通过 reopen 从已写入的位置续传
// 文件已存在时返回 ErrFileExists，失败时删除已写入的部分
func (s *Storage) CreateFile(ctx context.Context, folderID, fileName string, r io.ReadCloser, reopen Reopen) (int64, error) {
	path, err := s.filePath(folderID, fileName)
	if err != nil {
		r.Close()
		return 0, err
	}
	if err := s.beginCreate(folderID); err != nil {
		r.Close()
		return 0, err
	}
	defer s.endCreate(folderID)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		r.Close()
		if errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("%s/%s: %w", folderID, fileName, ErrFileExists)
		}
		return 0, err
	}
	written, err := s.copy(ctx, folderID, f, r, reopen)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(path); rerr != nil {
			logrus.WithError(rerr).WithField("file", path).Warn("failed to remove partial file")
		}
		return written, err
	}
	return written, nil
}

func (s *Storage) copy(ctx context.Context, folderID string, w io.Writer, r io.ReadCloser, reopen Reopen) (int64, error) {
	defer func() { r.Close() }()
	buf := make([]byte, copyBufSize)
	var written int64
	resumes := 0
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if s.isDeleting(folderID) {
			return written, fmt.Errorf("%s: %w", folderID, ErrFolderDeleted)
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
		}
		if rerr == nil {
			continue
		}
		if rerr == io.EOF {
			return written, nil
		}
		if reopen == nil || resumes >= maxResumes {
			return written, fmt.Errorf("read failed after %d bytes: %w", written, rerr)
		}
		resumes++
		logrus.WithError(rerr).WithFields(logrus.Fields{
			"offset": written,
			"resume": resumes,
		}).Debug("read interrupted, resuming")
		r.Close()
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		case <-time.After(resumeDelay):
		}
		next, err := reopen(ctx, written)
		if err != nil {
			return written, fmt.Errorf("failed to resume at %d: %w", written, err)
		}
		r = next
	}
}

// WriteFile 覆盖写入小文件（元数据），先写临时文件再重命名
func (s *Storage) WriteFile(folderID, fileName string, data []byte) error {
	path, err := s.filePath(folderID, fileName)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Storage) ReadFile(folderID, fileName string) ([]byte, error) {
	path, err := s.filePath(folderID, fileName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, types.NotFound("file", folderID+"/"+fileName)
	}
	return data, err
}

// DeleteFile 文件不存在时不报错
func (s *Storage) DeleteFile(folderID, fileName string) error {
	path, err := s.filePath(folderID, fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Storage) FileExists(folderID, fileName string) bool {
	path, err := s.filePath(folderID, fileName)
	if err != nil {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// ListFiles 返回名称包含 substr 的文件（不区分大小写），substr 为空时返回全部
func (s *Storage) ListFiles(folderID, substr string) ([]string, error) {
	dir, err := s.folderPath(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.NotFound("folder", folderID)
		}
		return nil, err
	}
	substr = strings.ToLower(substr)
	files := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if substr == "" || strings.Contains(strings.ToLower(e.Name()), substr) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *Storage) FileSize(folderID, fileName string) (int64, error) {
	path, err := s.filePath(folderID, fileName)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, types.NotFound("file", folderID+"/"+fileName)
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// ValidateFile 检查文件存在且大小一致，expectedSize < 0 时只检查存在
func (s *Storage) ValidateFile(folderID, fileName string, expectedSize int64) error {
	size, err := s.FileSize(folderID, fileName)
	if err != nil {
		return err
	}
	if expectedSize >= 0 && size != expectedSize {
		return fmt.Errorf("file %s/%s has %d bytes, expected %d", folderID, fileName, size, expectedSize)
	}
	return nil
}

// DownloadURL 没有配置下载地址时返回空字符串
func (s *Storage) DownloadURL(folderID, fileName string) string {
	if s.downloadURLBase == "" {
		return ""
	}
	return s.downloadURLBase + "/" + url.PathEscape(folderID) + "/" + url.PathEscape(fileName)
}

// Usage 存储所在磁盘的使用情况
func (s *Storage) Usage() (*disk.UsageStat, error) {
	return s.usage(s.root)
}

func (s *Storage) FreeSpace() (uint64, error) {
	u, err := s.Usage()
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

// CheckFreeSpace 剩余空间低于下限时返回 types.ErrNotEnoughSpace
func (s *Storage) CheckFreeSpace() error {
	if s.minFreeSpace <= 0 {
		return nil
	}
	free, err := s.FreeSpace()
	if err != nil {
		return fmt.Errorf("failed to get free space of %s: %w", s.root, err)
	}
	if free < uint64(s.minFreeSpace) {
		return fmt.Errorf("%w: %s free, %s required", types.ErrNotEnoughSpace,
			humanize.IBytes(free), humanize.IBytes(uint64(s.minFreeSpace)))
	}
	return nil
}
