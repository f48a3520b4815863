package ciscomcu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/pkg/gain"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

var (
	e164Pattern    = regexp.MustCompile(`^\+?\d{9,14}$`)
	numericPattern = regexp.MustCompile(`^\d+$`)
)

const (
	loginPage       = "/login.html"
	loginChangePage = "/login_change.html"
	noPreview       = "Unable to generate participant preview"
)

// ErrNoLicenses 授权数为 0 的会议室不能加入参与者
var ErrNoLicenses = errors.New("room has no licenses")

// participantKey 参与者 ID 的格式为 protocol:name
type participantKey struct {
	protocol string
	name     string
}

func parseParticipantID(id string) (participantKey, error) {
	protocol, name, ok := strings.Cut(id, ":")
	if !ok || protocol == "" || name == "" {
		return participantKey{}, fmt.Errorf("participant id %q must be in format <protocol>:<name>", id)
	}
	return participantKey{protocol: protocol, name: name}, nil
}

func (p participantKey) String() string {
	return p.protocol + ":" + p.name
}

// identify 设置定位参与者的参数，ad_hoc 参与者的名称是设备生成的数字
func (c *Connector) identify(cmd *command.Command, roomID, id string) error {
	pid, err := parseParticipantID(id)
	if err != nil {
		return err
	}
	participantType := "by_address"
	if numericPattern.MatchString(pid.name) {
		participantType = "ad_hoc"
	}
	cmd.Set("conferenceName", c.truncate(roomID)).
		Set("participantProtocol", c.truncate(pid.protocol)).
		Set("participantName", c.truncate(pid.name)).
		Set("participantType", participantType)
	return nil
}

func (c *Connector) ListRoomParticipants(ctx context.Context, roomID string) ([]*types.RoomParticipant, error) {
	return c.roomParticipants(ctx, roomID, false)
}

// roomParticipants withHidden 为 true 时隐藏的参与者追加在末尾
func (c *Connector) roomParticipants(ctx context.Context, roomID string, withHidden bool) ([]*types.RoomParticipant, error) {
	cmd := command.New("participant.enumerate").
		Set("operationScope", []string{"currentState"}).
		Set("enumerateFilter", "connected")
	items, err := c.enumerate(ctx, cmd, "participants")
	if err != nil {
		return nil, err
	}
	var visible, hidden []*types.RoomParticipant
	for _, item := range items {
		if toString(item["conferenceName"]) != roomID {
			continue
		}
		state, _ := item["currentState"].(map[string]any)
		if _, ok := c.hidden[toString(state["address"])]; ok {
			hidden = append(hidden, c.participant(item))
			continue
		}
		visible = append(visible, c.participant(item))
	}
	if withHidden {
		visible = append(visible, hidden...)
	}
	if visible == nil {
		visible = []*types.RoomParticipant{}
	}
	return visible, nil
}

// participant 解析 participant.enumerate/participant.status 的结果
func (c *Connector) participant(item map[string]any) *types.RoomParticipant {
	pid := participantKey{
		protocol: toString(item["participantProtocol"]),
		name:     toString(item["participantName"]),
	}
	roomID := toString(item["conferenceName"])
	p := &types.RoomParticipant{ID: pid.String(), RoomID: roomID}

	state, _ := item["currentState"].(map[string]any)
	if state == nil {
		return p
	}
	address := toString(state["address"])
	aliasType := types.AliasH323URI
	switch {
	case pid.protocol == "sip":
		aliasType = types.AliasSIPURI
	case e164Pattern.MatchString(address):
		aliasType = types.AliasH323E164
	}
	alias := types.NewAlias(aliasType, address)
	p.Alias = &alias
	p.DisplayName = toString(state["displayName"])
	if muted := boolField(state, "audioRxMuted"); muted != nil {
		p.MicrophoneEnabled = types.Bool(!*muted)
	}
	if muted := boolField(state, "videoRxMuted"); muted != nil {
		p.VideoEnabled = types.Bool(!*muted)
	}
	level := gain.DefaultLevel
	if toString(state["audioRxGainMode"]) == "fixed" {
		if millidB, ok := toInt(state["audioRxGainMillidB"]); ok {
			level = gain.LevelFromDB(float64(millidB)/1000, maxAbsGainDB)
		}
	}
	p.MicrophoneLevel = types.Int(level)
	p.JoinTime = toTime(state["connectTime"])

	if preview := toString(state["previewURL"]); preview != "" {
		_ = c.snapshotURLs.Set(roomID+":"+p.ID, preview)
		p.VideoSnapshot = true
	}
	return p
}

func (c *Connector) GetRoomParticipant(ctx context.Context, roomID, participantID string) (*types.RoomParticipant, error) {
	cmd := command.New("participant.status")
	if err := c.identify(cmd, roomID, participantID); err != nil {
		return nil, err
	}
	cmd.Set("operationScope", []string{"currentState"})
	result, err := c.exec(ctx, cmd)
	if err != nil {
		return nil, participantError(err, participantID)
	}
	return c.participant(result), nil
}

func participantError(err error, participantID string) error {
	if isFault(err, faultNoSuchParticipant) || isFault(err, faultNoSuchConference) {
		return fmt.Errorf("%w: %w", types.NotFound("participant", participantID), err)
	}
	return err
}

func (c *Connector) DialRoomParticipant(ctx context.Context, roomID string, alias types.Alias) (string, error) {
	room, err := c.GetRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	if !room.AcceptsParticipants() {
		return "", fmt.Errorf("cannot dial %s in room %s: %w", alias, roomID, ErrNoLicenses)
	}
	cmd := command.New("participant.add").
		Set("conferenceName", c.truncate(roomID)).
		Set("address", c.truncate(alias.Value)).
		Set("participantType", "ad_hoc").
		Set("addResponse", true)
	result, err := c.exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	participant, ok := result["participant"].(map[string]any)
	if !ok {
		return "", nil
	}
	name := toString(participant["participantName"])
	if protocol := toString(participant["participantProtocol"]); protocol != "" {
		return participantKey{protocol: protocol, name: name}.String(), nil
	}
	return name, nil
}

func (c *Connector) DisconnectRoomParticipant(ctx context.Context, roomID, participantID string) error {
	cmd := command.New("participant.remove")
	if err := c.identify(cmd, roomID, participantID); err != nil {
		return err
	}
	if _, err := c.exec(ctx, cmd); err != nil {
		return participantError(err, participantID)
	}
	c.snapshotURLs.Remove(roomID + ":" + participantID)
	return nil
}

func (c *Connector) ModifyRoomParticipant(ctx context.Context, p *types.RoomParticipant) error {
	if p.RoomID == "" || p.ID == "" {
		return errors.New("room id and participant id must be filled")
	}
	cmd := command.New("participant.modify")
	if err := c.identify(cmd, p.RoomID, p.ID); err != nil {
		return err
	}
	// 修改使用 activeState，查询使用 currentState
	cmd.Set("operationScope", "activeState")
	if p.DisplayName != "" {
		cmd.Set("displayNameOverrideValue", c.truncate(p.DisplayName)).
			Set("displayNameOverrideStatus", true)
	}
	if p.MicrophoneEnabled != nil {
		cmd.Set("audioRxMuted", !*p.MicrophoneEnabled)
	}
	if p.VideoEnabled != nil {
		cmd.Set("videoRxMuted", !*p.VideoEnabled)
	}
	if p.MicrophoneLevel != nil && *p.MicrophoneLevel != gain.DefaultLevel {
		cmd.Set("audioRxGainMillidB", gain.MillidB(gain.DBFromLevel(*p.MicrophoneLevel, maxAbsGainDB))).
			Set("audioRxGainMode", "fixed")
	} else {
		cmd.Set("audioRxGainMode", "default")
	}
	if _, err := c.exec(ctx, cmd); err != nil {
		return participantError(err, p.ID)
	}
	return nil
}

func (c *Connector) ModifyRoomParticipants(ctx context.Context, template *types.RoomParticipant) error {
	return internal.ModifyAllParticipants(ctx, c, template)
}

// GetRoomParticipantSnapshots 获取失败的参与者对应 nil
func (c *Connector) GetRoomParticipantSnapshots(ctx context.Context, roomID string, ids []string) (map[string]*types.MediaData, error) {
	out := make(map[string]*types.MediaData, len(ids))
	for _, id := range ids {
		key := roomID + ":" + id
		if v, err := c.snapshots.Get(key); err == nil {
			out[id] = v.(*types.MediaData)
			continue
		}
		snapshot, err := c.snapshot(ctx, roomID, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.Logger.WithError(err).WithFields(logrus.Fields{"room": roomID, "participant": id}).
				Warn("failed to retrieve participant snapshot")
			out[id] = nil
			continue
		}
		_ = c.snapshots.Set(key, snapshot)
		out[id] = snapshot
	}
	return out, nil
}

func (c *Connector) snapshotURL(ctx context.Context, roomID, id string) (string, error) {
	key := roomID + ":" + id
	if v, err := c.snapshotURLs.Get(key); err == nil {
		return v.(string), nil
	}
	p, err := c.GetRoomParticipant(ctx, roomID, id)
	if err != nil {
		return "", err
	}
	if !p.VideoSnapshot {
		return "", fmt.Errorf("participant %s has no snapshot", id)
	}
	v, err := c.snapshotURLs.Get(key)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Connector) snapshot(ctx context.Context, roomID, id string) (*types.MediaData, error) {
	preview, err := c.snapshotURL(ctx, roomID, id)
	if err != nil {
		return nil, err
	}
	c.Logger.WithFields(logrus.Fields{"room": roomID, "participant": id}).Debug("fetching participant snapshot")
	data, err := internal.Exec(ctx, c.Base, "snapshot", func(ctx context.Context) ([]byte, error) {
		return c.fetchWeb(ctx, c.webURL(preview))
	})
	if err != nil {
		return nil, err
	}
	mediaType := http.DetectContentType(data)
	if strings.HasPrefix(mediaType, "text/plain") {
		text := strings.TrimSpace(string(data))
		if strings.Contains(text, noPreview) {
			return nil, types.NotFound("participant", id)
		}
		return nil, fmt.Errorf("cannot get snapshot of participant %s: %s", id, text)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("device returned %s instead of image", mediaType)
	}
	return &types.MediaData{Type: mediaType, Data: data}, nil
}

func (c *Connector) webURL(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	path, query, _ := strings.Cut(target, "?")
	return c.web.URL(path, query)
}

// fetchWeb 被重定向到登录页时先登录再重试一次
func (c *Connector) fetchWeb(ctx context.Context, target string) ([]byte, error) {
	page, err := c.web.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(page.Path, loginPage) {
		return page.Body, nil
	}
	if err := c.loginWeb(ctx); err != nil {
		return nil, err
	}
	if page, err = c.web.Fetch(ctx, target); err != nil {
		return nil, err
	}
	if strings.HasPrefix(page.Path, loginPage) {
		return nil, errors.New("http login failed, still redirected to login page")
	}
	return page.Body, nil
}

func (c *Connector) loginWeb(ctx context.Context) error {
	status, err := c.web.PostForm(ctx, loginChangePage, url.Values{
		"user_name": {c.Config.Username},
		"password":  {c.Config.Password},
		"ok":        {"OK"},
	})
	if err != nil {
		return fmt.Errorf("http login failed: %w", err)
	}
	if status != http.StatusOK {
		return &transport.StatusError{URL: loginChangePage, StatusCode: status}
	}
	c.Logger.Info("http login successful")
	return nil
}
