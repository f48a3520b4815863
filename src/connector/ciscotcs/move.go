package ciscotcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/pkg/recordingid"
	"github.com/shongo-go/connector/src/storage"
	"github.com/shongo-go/connector/src/types"
)

// CheckRecordings 将设备上已处理完、属于已知文件夹的录制提交到移动池
func (c *Connector) CheckRecordings(ctx context.Context) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	c.folderMu.Lock()
	defer c.folderMu.Unlock()

	c.Logger.Debug("checking recordings to be moved")
	recordings, err := c.deviceRecordings(ctx, "*")
	if err != nil {
		return fmt.Errorf("failed to list recordings: %w", err)
	}
	if len(recordings) == 0 {
		return nil
	}
	folders, err := c.store.FolderIDs(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recordings {
		if _, ok := folders[rec.RecordingFolderID]; !ok {
			continue
		}
		if rec.DownloadURL == "" {
			continue
		}
		c.submitMove(rec)
	}
	return nil
}

// CheckRecording 录制已处理完时立即移动，不等待下一次检查
func (c *Connector) CheckRecording(ctx context.Context, recordingID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	parts, err := recordingid.Split(recordingID, 3)
	if err != nil {
		return err
	}
	if meta, err := c.store.GetRecording(ctx, parts[0], parts[1]); err == nil && meta.Moved {
		return nil
	}
	rec, err := c.deviceRecording(ctx, parts[2])
	if err != nil {
		return err
	}
	if rec.DownloadURL == "" {
		return nil
	}
	c.folderMu.Lock()
	defer c.folderMu.Unlock()
	folders, err := c.store.FolderIDs(ctx)
	if err != nil {
		return err
	}
	if _, ok := folders[rec.RecordingFolderID]; !ok {
		return types.NotFound("recording folder", rec.RecordingFolderID)
	}
	c.submitMove(rec)
	return nil
}

func (c *Connector) submitMove(rec *types.Recording) {
	logger := c.log(rec.ID).WithField("folder", rec.RecordingFolderID)
	ok := c.moves.Submit(rec.ID, func(ctx context.Context) {
		if err := c.move(ctx, rec.ID, logger); err != nil {
			logger.WithError(err).Error("failed to move recording")
			c.Metrics.IncRecordingMoves(c.Name(), "failed")
			c.Notify(connector.RecordingMoveFailedNotification(c.Name(), rec.ID, rec.RecordingFolderID, err))
			return
		}
		c.Metrics.IncRecordingMoves(c.Name(), "moved")
	})
	if ok {
		logger.Debug("recording queued for moving")
	}
}

// move 下载录制文件到存储，重写元数据后删除设备上的录制
func (c *Connector) move(ctx context.Context, recordingID string, logger *logrus.Entry) error {
	parts, err := recordingid.Split(recordingID, 3)
	if err != nil {
		return err
	}
	folderID, fileID, tcsID := parts[0], parts[1], parts[2]
	n, err := c.conference(ctx, tcsID)
	if err != nil {
		return err
	}
	rec, err := c.parseRecording(n)
	if err != nil {
		return err
	}
	if rec.DownloadURL == "" {
		return errors.New("recording has no downloadable movie")
	}
	logger.Info("moving recording")

	size, err := c.download(ctx, folderID, rec, logger)
	if err != nil {
		return err
	}
	logger.WithField("size", size).Debug("recording downloaded")

	if err := c.storage.DeleteFile(folderID, metadataFileName(fileID)); err != nil {
		logger.WithError(err).Warn("failed to delete temporary metadata")
	}
	if err := c.writeMetadata(ctx, recordingID, n, true); err != nil {
		return err
	}
	if err := c.deleteDeviceRecording(ctx, tcsID); err != nil {
		return err
	}
	logger.Info("recording moved")
	return nil
}

// download 保存设备上的录制文件并按设备声明的大小校验，校验失败时删除本地文件
func (c *Connector) download(ctx context.Context, folderID string, rec *types.Recording, logger *logrus.Entry) (int64, error) {
	reopen := func(ctx context.Context, offset int64) (io.ReadCloser, error) {
		d, err := c.downloader.Open(ctx, rec.DownloadURL, offset)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	body, err := c.downloader.Open(ctx, rec.DownloadURL, 0)
	if err != nil {
		return 0, err
	}
	expected := body.Size
	if expected < 0 {
		body.Close()
		return 0, errors.New("device did not report the recording size")
	}
	_, err = c.storage.CreateFile(ctx, folderID, rec.FileName, body, reopen)
	if errors.Is(err, storage.ErrFileExists) {
		// 上次移动中断后留下的文件
		if verr := c.storage.ValidateFile(folderID, rec.FileName, expected); verr == nil {
			logger.WithField("file", rec.FileName).Warn("recording file already exists")
			return expected, nil
		}
		logger.WithField("file", rec.FileName).Warn("replacing incomplete recording file")
		if err := c.storage.DeleteFile(folderID, rec.FileName); err != nil {
			return 0, err
		}
		if body, err = c.downloader.Open(ctx, rec.DownloadURL, 0); err != nil {
			return 0, err
		}
		_, err = c.storage.CreateFile(ctx, folderID, rec.FileName, body, reopen)
	}
	if err != nil {
		return 0, err
	}
	if err := c.storage.ValidateFile(folderID, rec.FileName, expected); err != nil {
		if derr := c.storage.DeleteFile(folderID, rec.FileName); derr != nil {
			logger.WithError(derr).Warn("failed to delete invalid recording file")
		}
		return 0, err
	}
	return expected, nil
}
