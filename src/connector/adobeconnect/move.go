package adobeconnect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/types"
)

// 重名时最多改名的次数
const maxRenames = 100

var numberedName = regexp.MustCompile(`^(.*)_([0-9]+)$`)

// incrementSuffix 追加 _0 或把已有的数字后缀加一
func incrementSuffix(name string) string {
	m := numberedName.FindStringSubmatch(name)
	if m == nil {
		return name + "_0"
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return name + "_0"
	}
	return m[1] + "_" + strconv.Itoa(n+1)
}

func (c *Connector) isMoved(recordingID string) bool {
	c.movedMu.Lock()
	defer c.movedMu.Unlock()
	_, ok := c.moved[recordingID]
	return ok
}

func (c *Connector) markMoved(recordingID string) {
	c.movedMu.Lock()
	defer c.movedMu.Unlock()
	c.moved[recordingID] = struct{}{}
}

// retainMoved 丢弃已不存在的录制
func (c *Connector) retainMoved(existing map[string]struct{}) {
	c.movedMu.Lock()
	defer c.movedMu.Unlock()
	for id := range c.moved {
		if _, ok := existing[id]; !ok {
			delete(c.moved, id)
		}
	}
}

// isStored 录制是否已位于 folderID（为空时表示任一录制文件夹）中，
// 位于其他普通文件夹中的录制也视为已存放，只记录警告
func (c *Connector) isStored(ctx context.Context, recordingID, folderID string) (bool, error) {
	if c.isMoved(recordingID) {
		return true, nil
	}
	sco, err := c.recordingInfo(ctx, recordingID)
	if err != nil {
		return false, err
	}
	current := sco.SelectAttr("folder-id")
	if folderID != "" {
		return current == folderID, nil
	}
	rootID, err := c.recordingsFolder(ctx)
	if err != nil {
		return false, err
	}
	folders, err := c.contents(ctx, command.New("sco-contents").Set("sco-id", rootID))
	if err != nil {
		return false, err
	}
	for _, folder := range folders {
		if scoID(folder) == current {
			c.markMoved(recordingID)
			return true, nil
		}
	}
	parent, err := c.scoInfo(ctx, current)
	if err != nil {
		return false, err
	}
	if parent.SelectAttr("type") == "folder" {
		c.Logger.WithFields(logrus.Fields{
			"recording": recordingID,
			"folder":    childText(parent, "name"),
		}).Warn("recording is stored outside the recordings folder")
		return true, nil
	}
	return false, nil
}

// moveRecording 移动到目标文件夹，重名时递增名称后缀后重试
func (c *Connector) moveRecording(ctx context.Context, recordingID, folderID string) error {
	c.moveMu.Lock()
	defer c.moveMu.Unlock()

	stored, err := c.isStored(ctx, recordingID, folderID)
	if err != nil || stored {
		return err
	}
	logger := c.Logger.WithFields(logrus.Fields{"recording": recordingID, "folder": folderID})
	logger.Info("moving recording")
	cmd := command.New("sco-move").Set("sco-id", recordingID).Set("folder-id", folderID)
	for i := 0; i < maxRenames; i++ {
		_, err := c.exec(ctx, cmd)
		if err == nil {
			return nil
		}
		if !types.IsCommandError(err, "invalid", "duplicate") {
			return err
		}
		sco, err := c.recordingInfo(ctx, recordingID)
		if err != nil {
			return err
		}
		name := incrementSuffix(childText(sco, "name"))
		logger.WithField("name", name).Debug("duplicate recording name, renaming")
		if err := c.renameSCO(ctx, recordingID, name); err != nil {
			return err
		}
	}
	return fmt.Errorf("recording %s: too many duplicate names in folder %s", recordingID, folderID)
}

// moveToRecordingFolder 把会议室中的录制移动到控制器为会议室指定的文件夹
func (c *Connector) moveToRecordingFolder(ctx context.Context, recordingID, roomID string) error {
	stored, err := c.isStored(ctx, recordingID, "")
	if err != nil || stored {
		return err
	}
	room, err := c.scoInfo(ctx, roomID)
	if err != nil {
		return err
	}
	if room.SelectAttr("type") != "meeting" {
		return fmt.Errorf("recording %s is not located in a room", recordingID)
	}
	folderID, err := c.targetFolder(ctx, roomID, "")
	if err != nil {
		return err
	}
	if err := c.moveRecording(ctx, recordingID, folderID); err != nil {
		return err
	}
	c.markMoved(recordingID)
	return nil
}

// submitMove 把移动交给后台池，同一录制不会重复提交
func (c *Connector) submitMove(recordingID, roomID string) {
	logger := c.Logger.WithFields(logrus.Fields{"recording": recordingID, "room": roomID})
	ok := c.moves.Submit(recordingID, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.Timeout*maxRenames)
		defer cancel()
		if err := c.moveToRecordingFolder(ctx, recordingID, roomID); err != nil {
			logger.WithError(err).Error("failed to move recording")
			c.Metrics.IncRecordingMoves(c.Name(), "failed")
			c.Notify(connector.RecordingMoveFailedNotification(c.Name(), recordingID, roomID, err))
			return
		}
		c.Metrics.IncRecordingMoves(c.Name(), "moved")
	})
	if ok {
		logger.Debug("recording queued for moving")
	}
}

// CheckRecordings 找出仍位于会议室中的已结束录制并提交移动
func (c *Connector) CheckRecordings(ctx context.Context) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	result, err := c.exec(ctx, command.New("report-bulk-objects").
		Set("filter-icon", recordingIcon).
		Set("filter-out-date-end", "null"))
	if err != nil {
		return fmt.Errorf("failed to list recordings: %w", err)
	}
	rows := elements(result, "report-bulk-objects", "row")
	existing := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		existing[row.SelectAttr("sco-id")] = struct{}{}
	}
	c.retainMoved(existing)

	rooms, err := c.managedRoomIDs(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		recordingID := row.SelectAttr("sco-id")
		if c.isMoved(recordingID) || c.moves.InFlight(recordingID) {
			continue
		}
		sco, err := c.recordingInfo(ctx, recordingID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return err
		}
		roomID := sco.SelectAttr("folder-id")
		if _, ok := rooms[roomID]; !ok {
			continue
		}
		c.submitMove(recordingID, roomID)
	}
	return nil
}

// CheckRecording 录制位于本系统的会议室中时立即提交移动
func (c *Connector) CheckRecording(ctx context.Context, recordingID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	sco, err := c.recordingInfo(ctx, recordingID)
	if err != nil {
		return err
	}
	roomID := sco.SelectAttr("folder-id")
	rooms, err := c.managedRoomIDs(ctx)
	if err != nil {
		return err
	}
	if _, ok := rooms[roomID]; ok {
		c.submitMove(recordingID, roomID)
	}
	return nil
}

// backupRoomRecordings 删除或清空会议室前把录制移到控制器指定的文件夹，
// 失败时通知管理员，不阻止删除
func (c *Connector) backupRoomRecordings(ctx context.Context, roomID string) {
	logger := c.Logger.WithField("room", roomID)
	scos, err := c.contents(ctx, command.New("sco-contents").
		Set("sco-id", roomID).
		Set("filter-icon", recordingIcon))
	if err != nil {
		logger.WithError(err).Warn("failed to list room recordings")
		c.Notify(connector.RecordingBackupFailedNotification(c.Name(), roomID, err))
		return
	}
	if len(scos) == 0 {
		return
	}
	folderID, err := c.targetFolder(ctx, roomID, "")
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			logger.WithError(err).Warn("cannot get recording folder of deleted room")
			return
		}
		logger.WithError(err).Warn("failed to get recording folder")
		c.Notify(connector.RecordingBackupFailedNotification(c.Name(), roomID, err))
		return
	}
	var errs []error
	for _, sco := range scos {
		recordingID := scoID(sco)
		if err := c.moveRecording(ctx, recordingID, folderID); err != nil {
			errs = append(errs, fmt.Errorf("recording %s: %w", recordingID, err))
			continue
		}
		c.markMoved(recordingID)
	}
	if err := errors.Join(errs...); err != nil {
		logger.WithError(err).Warn("failed to back up recordings")
		c.Notify(connector.RecordingBackupFailedNotification(c.Name(), roomID, err))
		return
	}
	logger.WithField("count", len(scos)).Info("room recordings backed up")
}
