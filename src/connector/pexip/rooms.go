package pexip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	uuid "github.com/satori/go.uuid"
	"github.com/tidwall/gjson"

	"github.com/shongo-go/connector/src/connector"
	"github.com/shongo-go/connector/src/pkg/transport"
	"github.com/shongo-go/connector/src/types"
)

// 每页读取的会议室数量
const listPageSize = 500

var _ connector.RoomService = (*Connector)(nil)

func roomPath(roomID string) string {
	return conferencePath + roomID + "/"
}

func (c *Connector) ListRooms(ctx context.Context) ([]types.RoomSummary, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	rooms := []types.RoomSummary{}
	for offset := 0; ; offset += listPageSize {
		resp, err := c.do(ctx, "conference-list", transport.Request{
			Method: http.MethodGet,
			Path:   conferencePath,
			Query: map[string]string{
				"limit":        strconv.Itoa(listPageSize),
				"offset":       strconv.Itoa(offset),
				"service_type": "conference",
			},
		})
		if err != nil {
			return nil, err
		}
		objects := gjson.GetBytes(resp.Body, "objects").Array()
		for _, o := range objects {
			summary := types.RoomSummary{
				ID:          o.Get("id").String(),
				Name:        o.Get("name").String(),
				Description: o.Get("description").String(),
			}
			summary.Alias = summaryAlias(o)
			rooms = append(rooms, summary)
		}
		if len(objects) < listPageSize || gjson.GetBytes(resp.Body, "meta.next").String() == "" {
			return rooms, nil
		}
	}
}

func (c *Connector) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	if err := c.RequireConnected(); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, "conference-get", transport.Request{Method: http.MethodGet, Path: roomPath(roomID)})
	if err != nil {
		if isNotFound(err) {
			return nil, types.NotFound("room", roomID)
		}
		return nil, err
	}
	return parseRoom(gjson.ParseBytes(resp.Body)), nil
}

// summaryAlias 优先返回 SIP 别名，没有时返回第一个别名
func summaryAlias(o gjson.Result) string {
	aliases := o.Get("aliases").Array()
	for _, a := range aliases {
		value := a.Get("alias").String()
		if a.Get("protocol").String() == "sip" || strings.Contains(value, "@") {
			return value
		}
	}
	if len(aliases) > 0 {
		return aliases[0].Get("alias").String()
	}
	return ""
}

func parseRoom(o gjson.Result) *types.Room {
	room := &types.Room{
		ID:           o.Get("id").String(),
		Description:  o.Get("description").String(),
		LicenseCount: int(o.Get("participant_limit").Int()),
	}
	room.AddAlias(types.AliasRoomName, o.Get("name").String())
	for _, a := range o.Get("aliases.#.alias").Array() {
		value := a.String()
		if value == room.Name() {
			continue
		}
		if strings.Contains(value, "@") {
			room.AddAlias(types.AliasSIPURI, value)
			room.AddTechnology(types.TechnologySIP)
		} else {
			room.AddAlias(types.AliasRoomName, value)
		}
	}
	if pin, guestPIN := o.Get("pin").String(), o.Get("guest_pin").String(); pin != "" || guestPIN != "" {
		room.AddSetting(&types.PexipRoomSetting{PIN: pin, GuestPIN: guestPIN})
	}
	return room
}

// conferenceParams 会议室对应的配置字段
func conferenceParams(room *types.Room) (map[string]any, error) {
	name := room.Name()
	if name == "" {
		return nil, errors.New("room name must be filled")
	}
	aliases := []map[string]string{}
	for _, alias := range room.Aliases {
		switch alias.Type {
		case types.AliasRoomName, types.AliasSIPURI:
			aliases = append(aliases, map[string]string{"alias": alias.Value})
		default:
			return nil, fmt.Errorf("unrecognized alias %s: %s", alias.Type, alias.Value)
		}
	}
	params := map[string]any{
		"name":              name,
		"aliases":           aliases,
		"description":       room.Description,
		"participant_limit": room.LicenseCount,
	}
	if s := room.PexipSetting(); s != nil {
		params["pin"] = s.PIN
		params["guest_pin"] = s.GuestPIN
		params["allow_guests"] = s.GuestPIN != ""
	}
	return params, nil
}

// CreateRoom 会议室 ID 取自响应的 Location 头
func (c *Connector) CreateRoom(ctx context.Context, room *types.Room) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	params, err := conferenceParams(room)
	if err != nil {
		return "", err
	}
	params["service_type"] = "conference"
	params["service_tag"] = uuid.Must(uuid.NewV4()).String()
	resp, err := c.do(ctx, "conference-create", transport.Request{
		Method: http.MethodPost,
		Path:   conferencePath,
		Body:   params,
		Expect: []int{http.StatusCreated},
	})
	if err != nil {
		return "", err
	}
	id := lastSegment(resp.Header.Get("Location"))
	if id == "" {
		return "", errors.New("created room has no location")
	}
	c.Logger.WithField("room", id).Info("room created")
	return id, nil
}

func lastSegment(location string) string {
	location = strings.TrimSuffix(location, "/")
	if i := strings.LastIndexByte(location, '/'); i >= 0 {
		return location[i+1:]
	}
	return location
}

func (c *Connector) ModifyRoom(ctx context.Context, room *types.Room) (string, error) {
	if err := c.RequireConnected(); err != nil {
		return "", err
	}
	params, err := conferenceParams(room)
	if err != nil {
		return "", err
	}
	_, err = c.do(ctx, "conference-modify", transport.Request{
		Method: http.MethodPatch,
		Path:   roomPath(room.ID),
		Body:   params,
		Expect: []int{http.StatusAccepted, http.StatusOK, http.StatusNoContent},
	})
	if err != nil {
		if isNotFound(err) {
			return "", types.NotFound("room", room.ID)
		}
		return "", err
	}
	return room.ID, nil
}

func (c *Connector) DeleteRoom(ctx context.Context, roomID string) error {
	if err := c.RequireConnected(); err != nil {
		return err
	}
	_, err := c.do(ctx, "conference-delete", transport.Request{Method: http.MethodDelete, Path: roomPath(roomID)})
	if err != nil {
		if isNotFound(err) {
			return types.NotFound("room", roomID)
		}
		return err
	}
	c.Logger.WithField("room", roomID).Info("room deleted")
	return nil
}
