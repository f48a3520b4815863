package ciscomcu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/connector/internal"
	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/types"
)

// 布局编号与布局的对应关系
func layoutByIndex(index int) types.RoomLayout {
	switch index {
	case 1:
		return types.LayoutSpeaker
	case 2, 3, 4, 8, 9:
		return types.LayoutGrid
	case 5, 6, 7:
		return types.LayoutSpeakerCorner
	default:
		return types.LayoutOther
	}
}

func layoutIndex(layout types.RoomLayout) (int, bool) {
	switch layout {
	case types.LayoutSpeaker:
		return 1, true
	case types.LayoutSpeakerCorner:
		return 5, true
	case types.LayoutGrid:
		return 3, true
	default:
		return 0, false
	}
}

func (c *Connector) ListRooms(ctx context.Context) ([]types.RoomSummary, error) {
	cmd := command.New("conference.enumerate").
		Set("moreThanFour", true).
		Set("enumerateFilter", "!completed")
	conferences, err := c.enumerate(ctx, cmd, "conferences")
	if err != nil {
		return nil, err
	}
	rooms := make([]types.RoomSummary, 0, len(conferences))
	for _, conference := range conferences {
		rooms = append(rooms, roomSummary(conference))
	}
	return rooms, nil
}

func roomSummary(conference map[string]any) types.RoomSummary {
	name := toString(conference["conferenceName"])
	startTime, ok := conference["startTime"]
	if !ok {
		startTime = conference["activeStartTime"]
	}
	return types.RoomSummary{
		ID:          name,
		Name:        name,
		Description: toString(conference["description"]),
		Alias:       toString(conference["numericId"]),
		StartTime:   toTime(startTime),
	}
}

func (c *Connector) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	cmd := command.New("conference.status").Set("conferenceName", c.truncate(roomID))
	status, err := c.exec(ctx, cmd)
	if err != nil {
		if isFault(err, faultNoSuchConference) {
			return nil, types.NotFound("room", roomID)
		}
		return nil, err
	}
	return roomFromStatus(status), nil
}

func roomFromStatus(status map[string]any) *types.Room {
	name := toString(status["conferenceName"])
	room := &types.Room{ID: name}
	room.AddAlias(types.AliasRoomName, name)
	if n, ok := toInt(status["maximumVideoPorts"]); ok {
		room.LicenseCount = n
	}
	room.AddTechnology(types.TechnologyH323)
	room.Description = toString(status["description"])
	if number := toString(status["numericId"]); number != "" {
		room.AddAlias(types.AliasH323E164, number)
	}
	if index, ok := toInt(status["customLayout"]); ok {
		room.Layout = layoutByIndex(index)
	}

	setting := &types.H323RoomSetting{
		PIN:                    toString(status["pin"]),
		AllowContent:           boolField(status, "contentContribution"),
		JoinMicrophoneDisabled: boolField(status, "joinAudioMuted"),
		JoinVideoDisabled:      boolField(status, "joinVideoMuted"),
		RegisterWithGatekeeper: boolField(status, "registerWithGatekeeper"),
		RegisterWithRegistrar:  boolField(status, "registerWithSIPRegistrar"),
		StartLocked:            boolField(status, "startLocked"),
		ConferenceMeEnabled:    boolField(status, "conferenceMeEnabled"),
		ContentImportant:       boolField(status, "contentImportant"),
	}
	if private := boolField(status, "private"); private != nil {
		setting.ListedPublicly = types.Bool(!*private)
	}
	room.AddSetting(setting)
	return room
}

func (c *Connector) CreateRoom(ctx context.Context, room *types.Room) (string, error) {
	cmd := command.New("conference.create").
		Set("customLayoutEnabled", true).
		Set("newParticipantsCustomLayout", true).
		Set("enforceMaximumAudioPorts", true).
		// 纯音频参与者也占用视频端口
		Set("maximumAudioPorts", 0).
		Set("enforceMaximumVideoPorts", true).
		Set("private", false).
		Set("contentContribution", true).
		Set("contentTransmitResolutions", "allowAll").
		Set("joinAudioMuted", false).
		Set("joinVideoMuted", false).
		Set("startLocked", false).
		Set("conferenceMeEnabled", false)

	r := *room
	if r.Layout == "" {
		r.Layout = types.LayoutSpeakerCorner
	}
	if err := c.setConferenceParams(cmd, &r); err != nil {
		return "", err
	}
	name := cmd.GetString("conferenceName")
	if name == "" {
		return "", errors.New("room name must be filled for the new room")
	}

	if _, err := c.exec(ctx, cmd); err != nil {
		// 设备有时报错但会议室已经建好
		if _, gerr := c.GetRoom(ctx, name); gerr != nil {
			return "", err
		}
		c.Logger.WithError(err).WithField("room", name).Warn("conference.create failed but the room exists")
	}

	if alias, ok := r.GetAlias(types.AliasH323E164); ok {
		c.syncAlias("create", name, func(ctx context.Context, aliases aliasService) error {
			_, err := aliases.CreateAlias(ctx, alias.Type, alias.Value, name)
			return err
		})
	} else {
		c.syncAlias("create", name, func(ctx context.Context, aliases aliasService) error {
			return errors.New("H323_E164 alias is required by the alias service")
		})
	}
	return name, nil
}

// setConferenceParams 把会议室属性写入 conference.create/conference.modify 的参数
func (c *Connector) setConferenceParams(cmd *command.Command, room *types.Room) error {
	// 永久会议室
	cmd.Set("durationSeconds", 0)
	license := room.LicenseCount
	if license < 0 {
		license = 0
	}
	cmd.Set("maximumVideoPorts", license)
	if index, ok := layoutIndex(room.Layout); ok {
		cmd.Set("customLayout", index)
	}
	if room.Description != "" {
		cmd.Set("description", c.truncate(room.Description))
	}

	for _, alias := range room.Aliases {
		var number, name string
		switch alias.Type {
		case types.AliasRoomName:
			name = alias.Value
		case types.AliasH323E164:
			if c.roomNumberFromH323 == nil {
				return fmt.Errorf("cannot set H.323 E164 number, missing option %q", OptionRoomNumberFromH323Number)
			}
			m := c.roomNumberFromH323.FindStringSubmatch(alias.Value)
			if len(m) < 2 {
				return fmt.Errorf("invalid E164 number %q", alias.Value)
			}
			number = m[1]
		case types.AliasSIPURI:
			if c.roomNumberFromSIP == nil {
				return fmt.Errorf("cannot set SIP URI, missing option %q", OptionRoomNumberFromSIPURI)
			}
			if m := c.roomNumberFromSIP.FindStringSubmatch(alias.Value); len(m) >= 2 {
				number = m[1]
			} else {
				at := strings.IndexByte(alias.Value, '@')
				if at <= 0 {
					return fmt.Errorf("invalid SIP URI %q", alias.Value)
				}
				name = alias.Value[:at]
			}
		case types.AliasH323URI, types.AliasH323IP, types.AliasSIPIP, types.AliasCSDialString:
		default:
			return fmt.Errorf("unrecognized alias %s", alias)
		}

		if number != "" {
			number = c.truncate(number)
			if old := cmd.GetString("numericId"); old != "" && old != number {
				return fmt.Errorf("only one number is supported for a room, requested another: %s", alias)
			}
			cmd.Set("numericId", number)
		}
		if name != "" {
			name = c.truncate(name)
			if old := cmd.GetString("conferenceName"); old != "" && old != name {
				return fmt.Errorf("only one room name is supported, requested another: %s", alias)
			}
			cmd.Set("conferenceName", name)
		}
	}

	setting := room.H323Setting()
	if setting == nil {
		return nil
	}
	if setting.AllowGuests != nil {
		return types.Unsupported("h323 setting allow-guests")
	}
	if setting.PIN != "" {
		cmd.Set("pin", setting.PIN)
	}
	if setting.ListedPublicly != nil {
		cmd.Set("private", !*setting.ListedPublicly)
	}
	for _, f := range []struct {
		key   string
		value *bool
	}{
		{"contentContribution", setting.AllowContent},
		{"joinAudioMuted", setting.JoinMicrophoneDisabled},
		{"joinVideoMuted", setting.JoinVideoDisabled},
		{"registerWithGatekeeper", setting.RegisterWithGatekeeper},
		{"registerWithSIPRegistrar", setting.RegisterWithRegistrar},
		{"startLocked", setting.StartLocked},
		{"conferenceMeEnabled", setting.ConferenceMeEnabled},
		{"contentImportant", setting.ContentImportant},
	} {
		if f.value != nil {
			cmd.Set(f.key, *f.value)
		}
	}
	return nil
}

// ModifyRoom 会议室名称变化时重建，否则先断开超出授权数的参与者再原地修改
func (c *Connector) ModifyRoom(ctx context.Context, room *types.Room) (string, error) {
	old, err := c.GetRoom(ctx, room.ID)
	if err != nil {
		return "", err
	}
	recreate, err := recreateNeeded(old, room)
	if err != nil {
		return "", err
	}
	if recreate {
		return internal.RecreateRoom(ctx, c.Base, c, room.ID, room, nil)
	}

	if err := c.disconnectAboveLicense(ctx, room.ID, room.LicenseCount); err != nil {
		return "", err
	}
	cmd := command.New("conference.modify").Set("conferenceName", c.truncate(room.ID))
	if err := c.setConferenceParams(cmd, room); err != nil {
		return "", err
	}
	c.syncModifiedAlias(old, room)
	if _, err := c.exec(ctx, cmd); err != nil {
		return "", err
	}
	return room.ID, nil
}

func recreateNeeded(old, room *types.Room) (bool, error) {
	oldName, ok := old.GetAlias(types.AliasRoomName)
	if !ok {
		return false, fmt.Errorf("room %s has no room name", old.ID)
	}
	newName, ok := room.GetAlias(types.AliasRoomName)
	if !ok {
		return false, errors.New("room name must be present")
	}
	return oldName != newName, nil
}

// disconnectAboveLicense 只保留 license 个参与者，隐藏的参与者排在最后，最先被断开
func (c *Connector) disconnectAboveLicense(ctx context.Context, roomID string, license int) error {
	participants, err := c.roomParticipants(ctx, roomID, true)
	if err != nil {
		return err
	}
	for i, p := range participants {
		logger := c.Logger.WithFields(logrus.Fields{"room": roomID, "participant": p.ID})
		if i < license {
			logger.Debug("keeping participant connected")
			continue
		}
		logger.WithField("license_count", license).Warn("disconnecting participant to meet license count")
		if err := c.DisconnectRoomParticipant(ctx, roomID, p.ID); err != nil {
			return fmt.Errorf("cannot disconnect participant %s: %w", p.ID, err)
		}
	}
	return nil
}

func (c *Connector) DeleteRoom(ctx context.Context, roomID string) error {
	room, err := c.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	name := room.Name()
	c.syncAlias("delete", roomID, func(ctx context.Context, aliases aliasService) error {
		return aliases.DeleteAlias(ctx, name)
	})
	_, err = c.exec(ctx, command.New("conference.destroy").Set("conferenceName", c.truncate(roomID)))
	if err != nil && isFault(err, faultNoSuchConference) {
		return types.NotFound("room", roomID)
	}
	return err
}
