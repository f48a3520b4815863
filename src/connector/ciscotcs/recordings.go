package ciscotcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/pkg/recordingid"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/recordingstore"
	"github.com/shongo-go/connector/src/types"
)

// 文件 ID 为开始录制的 UTC 时间
const fileIDLayout = "2006-01-02T15:04:05Z"

var _ connector.RecordingService = (*Connector)(nil)

func (c *Connector) CreateRecordingFolder(ctx context.Context, folder *types.RecordingFolder) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	if folder.Name == "" {
		return "", errors.New("recording folder name must be filled")
	}
	id, err := c.storage.CreateFolder(folder.Name)
	if err != nil {
		return "", err
	}
	err = c.store.CreateFolder(ctx, &recordingstore.Folder{
		ID:          id,
		Name:        folder.Name,
		Permissions: folder.UserPermissions,
	})
	if err != nil {
		return "", err
	}
	c.Logger.WithField("folder", id).Info("recording folder created")
	return id, nil
}

func (c *Connector) ModifyRecordingFolder(ctx context.Context, folder *types.RecordingFolder) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	return c.store.SetPermissions(ctx, folder.ID, folder.UserPermissions)
}

// DeleteRecordingFolder 删除本地文件夹，等待移入该文件夹的录制结束，再删除设备上属于该文件夹的录制
func (c *Connector) DeleteRecordingFolder(ctx context.Context, folderID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	if folderID == "" {
		return errors.New("recording folder id must be filled")
	}
	c.folderMu.Lock()
	defer c.folderMu.Unlock()

	logger := c.Logger.WithField("folder", folderID)
	logger.Debug("removing recording folder")
	if err := c.storage.DeleteFolder(ctx, folderID); err != nil {
		return err
	}
	if err := c.store.DeleteFolder(ctx, folderID); err != nil {
		return err
	}
	for {
		moving := c.movingInto(folderID)
		if len(moving) == 0 {
			break
		}
		logger.WithField("recordings", strings.Join(moving, ", ")).Debug("waiting for recordings to be moved")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	recordings, err := c.deviceRecordings(ctx, strings.ReplaceAll(folderID, "_", "__")+"_*")
	if err != nil {
		return err
	}
	for _, rec := range recordings {
		if rec.RecordingFolderID != folderID {
			continue
		}
		tcsID, err := recordingid.TCSID(rec.ID)
		if err != nil {
			return err
		}
		if err := c.deleteDeviceRecording(ctx, tcsID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) movingInto(folderID string) []string {
	var ids []string
	for _, id := range c.moves.Keys() {
		if folder, err := recordingid.FolderID(id); err == nil && folder == folderID {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Connector) ListRecordings(ctx context.Context, folderID string) ([]*types.Recording, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	metas, err := c.store.ListRecordings(ctx, folderID)
	if err != nil {
		return nil, err
	}
	recordings := make([]*types.Recording, 0, len(metas))
	for _, meta := range metas {
		rec, err := c.storedRecording(ctx, meta)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, rec)
	}
	return recordings, nil
}

func (c *Connector) GetRecording(ctx context.Context, recordingID string) (*types.Recording, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	parts, err := recordingid.Split(recordingID, 3)
	if err != nil {
		return nil, err
	}
	meta, err := c.store.GetRecording(ctx, parts[0], parts[1])
	if err == nil {
		return c.storedRecording(ctx, meta)
	}
	if !isNotFound(err) {
		return nil, err
	}
	return c.deviceRecording(ctx, parts[2])
}

// storedRecording 由保存的元数据还原录制，尚未处理完的录制向设备刷新状态
func (c *Connector) storedRecording(ctx context.Context, meta *recordingstore.Recording) (*types.Recording, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(meta.Metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata of %s/%s: %w", meta.FolderID, meta.FileID, err)
	}
	rec, err := c.parseRecording(xmlquery.FindOne(doc, "/*"))
	if err != nil {
		return nil, err
	}
	rec.RecordingFolderID = meta.FolderID
	if meta.Moved {
		rec.State = types.RecordingAvailable
		rec.FileName = meta.FileName
		rec.DownloadURL = c.storage.DownloadURL(meta.FolderID, meta.FileName)
		if size, err := c.storage.FileSize(meta.FolderID, meta.FileName); err == nil {
			rec.Size = size
		}
		return rec, nil
	}
	if rec.State == types.RecordingNotProcessed {
		device, err := c.deviceRecording(ctx, meta.DeviceID)
		switch {
		case err == nil:
			rec.State = device.State
		case !isNotFound(err):
			return nil, err
		}
	}
	return rec, nil
}

// GetActiveRecording 设备不能按别名查询录制
func (c *Connector) GetActiveRecording(ctx context.Context, alias types.Alias) (*types.Recording, error) {
	return nil, nil
}

func (c *Connector) IsRecordingActive(ctx context.Context, recordingID string) (bool, error) {
	if err := c.RequireConnected(); err != nil {
		return false, err
	}
	tcsID, err := recordingid.TCSID(recordingID)
	if err != nil {
		return false, err
	}
	result, err := c.result(ctx, command.New("GetCallInfo").Set("ConferenceID", tcsID))
	if err != nil {
		return false, err
	}
	return strings.HasSuffix(transport.ChildText(result, "CallState"), "IN_CALL"), nil
}

// StartRecording 只支持 H.323 E.164 别名，返回组合录制 ID
func (c *Connector) StartRecording(ctx context.Context, folderID string, alias types.Alias, settings types.RecordingSettings) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	if alias.Type != types.AliasH323E164 {
		return "", fmt.Errorf("recording of %s alias: %w", alias.Type, types.ErrUnsupported)
	}
	if err := c.storage.CheckFreeSpace(); err != nil {
		return "", err
	}
	name, err := recordingid.FormatName(c.prefix, recordingid.Name{
		FolderID: folderID,
		Alias:    alias.Value,
		FileID:   time.Now().UTC().Format(fileIDLayout),
	})
	if err != nil {
		return "", err
	}

	request := command.New("RequestConferenceID").
		Set("owner", "admin").
		Set("password", "").
		Set("startDateTime", "0").
		Set("duration", "0").
		Set("title", name).
		Set("groupId", "").
		Set("isRecurring", "false")
	result, err := c.result(ctx, request)
	if err != nil {
		return "", err
	}
	conferenceID := strings.TrimSpace(result.InnerText())

	bitrate := settings.Bitrate
	if bitrate == "" {
		bitrate = c.defaultBitrate
	}
	dial := command.New("Dial").
		Set("Number", alias.Value).
		Set("Bitrate", bitrate).
		Set("Alias", c.alias).
		Set("ConferenceID", conferenceID).
		Set("CallType", "h323").
		Set("SetMetadata", true).
		Set("PIN", settings.PIN)
	result, err = c.result(ctx, dial)
	if err != nil {
		return "", err
	}
	tcsID := transport.ChildText(result, "ConferenceID")
	if tcsID == "" {
		return "", errors.New("no recording id was returned from dialing")
	}
	rec, err := c.deviceRecording(ctx, tcsID)
	if err != nil {
		return "", err
	}
	c.log(rec.ID).WithField("alias", alias.Value).Info("recording started")
	return rec.ID, nil
}

// StopRecording 挂断录制呼叫并保存元数据
func (c *Connector) StopRecording(ctx context.Context, recordingID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	tcsID, err := recordingid.TCSID(recordingID)
	if err != nil {
		return err
	}
	if _, err := c.exec(ctx, command.New("DisconnectCall").Set("ConferenceID", tcsID)); err != nil {
		return err
	}
	n, err := c.conference(ctx, tcsID)
	if err != nil {
		return err
	}
	if err := c.writeMetadata(ctx, recordingID, n, false); err != nil {
		return err
	}
	c.log(recordingID).Info("recording stopped")
	return nil
}

// DeleteRecording 删除设备上的录制（如果还在）和本地文件
func (c *Connector) DeleteRecording(ctx context.Context, recordingID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	parts, err := recordingid.Split(recordingID, 3)
	if err != nil {
		return err
	}
	folderID, fileID, tcsID := parts[0], parts[1], parts[2]
	if tcsID != "" {
		_, err := c.conference(ctx, tcsID)
		switch {
		case err == nil:
			if err := c.deleteDeviceRecording(ctx, tcsID); err != nil {
				return err
			}
		case !isNotFound(err):
			return err
		}
	}
	files, err := c.storage.ListFiles(folderID, fileID)
	if err != nil && !isNotFound(err) {
		return err
	}
	for _, name := range files {
		if err := c.storage.DeleteFile(folderID, name); err != nil {
			return err
		}
	}
	return c.store.DeleteRecording(ctx, folderID, fileID)
}

// parseRecording 由 GetConference 结果或 Conference 元素构造录制
func (c *Connector) parseRecording(n *xmlquery.Node) (*types.Recording, error) {
	if n == nil {
		return nil, errors.New("empty recording element")
	}
	title := transport.ChildText(n, "Title")
	name, ok := recordingid.ParseName(c.prefix, title)
	if !ok {
		return nil, fmt.Errorf("invalid format of recording name %q", title)
	}
	id, err := recordingid.FormatRecordingID(name.FolderID, name.FileID, transport.ChildText(n, "ConferenceID"))
	if err != nil {
		return nil, err
	}
	begin, err := strconv.ParseInt(transport.ChildText(n, "DateTime"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("recording %s: invalid date time: %w", title, err)
	}
	duration, err := strconv.ParseInt(transport.ChildText(n, "Duration"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("recording %s: invalid duration: %w", title, err)
	}
	rec := &types.Recording{
		ID:                id,
		RecordingFolderID: name.FolderID,
		Name:              title,
		BeginDate:         time.Unix(begin, 0),
		Duration:          time.Duration(duration) * time.Millisecond,
		State:             types.RecordingNotProcessed,
	}
	if duration == 0 {
		rec.State = types.RecordingNotStarted
	}
	if transport.ChildText(n, "HasDownloadableMovie") == "true" {
		url := transport.ChildText(find(n, "DownloadableMovies", "DownloadableMovie"), "URL")
		rec.DownloadURL = url
		rec.FileName = name.FileID + "." + url[strings.LastIndexByte(url, '.')+1:]
		rec.State = types.RecordingProcessed
	}
	return rec, nil
}

// writeMetadata 元数据同时写入录制文件夹（隐藏文件）和元数据库
func (c *Connector) writeMetadata(ctx context.Context, recordingID string, n *xmlquery.Node, moved bool) error {
	parts, err := recordingid.Split(recordingID, 3)
	if err != nil {
		return err
	}
	rec, err := c.parseRecording(n)
	if err != nil {
		return err
	}
	data := []byte(stripPrefix(n.OutputXML(true), n.Prefix))
	if err := c.storage.WriteFile(parts[0], metadataFileName(parts[1]), data); err != nil {
		return fmt.Errorf("failed to write metadata of %s: %w", recordingID, err)
	}
	return c.store.PutRecording(ctx, &recordingstore.Recording{
		FolderID: parts[0],
		FileID:   parts[1],
		DeviceID: transport.ChildText(n, "ConferenceID"),
		FileName: rec.FileName,
		Metadata: data,
		Moved:    moved,
	})
}

func metadataFileName(fileID string) string {
	return "." + fileID + ".xml"
}

// stripPrefix 去掉元素名上的命名空间前缀，保存的元数据不带命名空间声明
func stripPrefix(xml, prefix string) string {
	if prefix == "" {
		return xml
	}
	xml = strings.ReplaceAll(xml, "<"+prefix+":", "<")
	return strings.ReplaceAll(xml, "</"+prefix+":", "</")
}
