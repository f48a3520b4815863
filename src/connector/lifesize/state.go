package lifesize

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/shongo-go/connector/src/types"
)

// callStates 设备通话状态；nil 表示结束，未列出的状态保留原值
var callStates = map[string]*types.CallState{
	"On Hook":            nil,
	"Terminated":         nil,
	"Off Hook":           nil,
	"Terminating":        callState(types.CallDisconnected),
	"Valid Number":       callState(types.CallDialing),
	"Dialing":            callState(types.CallDialing),
	"Proceeding":         callState(types.CallDialing),
	"Ringing":            callState(types.CallRinging),
	"Ringback":           callState(types.CallRinging),
	"Ring Incoming":      callState(types.CallRinging),
	"Answered Number":    callState(types.CallRinging),
	"Answered Consult":   callState(types.CallRinging),
	"Connected":          callState(types.CallConnected),
	"Call Encrypted":     callState(types.CallConnected),
	"Call Not Encrypted": callState(types.CallConnected),
	"Far End Mute":       callState(types.CallConnected),
	"Far End Unmute":     callState(types.CallConnected),
	"Far End Hold":       callState(types.CallConnected),
	"Far End Resume":     callState(types.CallConnected),
}

func callState(s types.CallState) *types.CallState {
	return &s
}

// parseCall 解析 status call active 的一行：
// id,conference,state,incoming,type,remote,...,technology[,duration]
func (c *Connector) parseCall(line string) *types.EndpointCall {
	f := strings.Split(line, delimiter)
	if len(f) < 9 {
		c.Logger.WithField("line", line).Warn("unexpected call status")
		return nil
	}
	id, err := strconv.Atoi(f[0])
	if err != nil {
		c.Logger.WithField("line", line).Warn("call id is not an integer")
		return nil
	}
	state, ok := callStates[f[2]]
	if !ok || state == nil {
		c.Logger.WithField("state", f[2]).Warn("unknown call state in active call list")
		return nil
	}
	switch f[4] {
	case "Video", "Audio", "Unknown":
	default:
		c.Logger.WithField("type", f[4]).Warn("unknown call type")
		return nil
	}
	switch f[8] {
	case "h323", "sip":
	default:
		c.Logger.WithField("technology", f[8]).Warn("unknown call technology")
		return nil
	}
	return &types.EndpointCall{
		ID:            strconv.Itoa(id),
		State:         *state,
		RemoteAddress: f[5],
		Incoming:      f[3] == "Yes",
	}
}

// flush 处理 SSH 会话中积压的异步消息
func (c *Connector) flush(ctx context.Context) error {
	for _, msg := range c.session.TakeAsync() {
		c.process(ctx, strings.Split(msg, delimiter))
	}
	return nil
}

func (c *Connector) process(ctx context.Context, f []string) {
	logger := c.Logger.WithField("message", strings.Join(f, delimiter))
	switch f[0] {
	case "CS":
		c.processCall(ctx, f, false)
	case "IC":
		c.processCall(ctx, f, true)
	case "PS":
		if len(f) < 5 {
			logger.Warn("malformed presentation status")
			return
		}
		remote := f[4] == "Yes"
		c.stateMu.Lock()
		switch f[3] {
		case "Relinquished":
			c.sending, c.receiving = false, true
		case "Initiated":
			if remote {
				c.receiving = true
			} else {
				c.sending = true
			}
		case "Terminated":
			if remote {
				c.receiving = false
			} else {
				c.sending = false
			}
		default:
			logger.Warn("unknown presentation state")
		}
		c.stateMu.Unlock()
	case "MS":
		if len(f) > 1 {
			c.stateMu.Lock()
			c.muted = f[1] == "true"
			c.stateMu.Unlock()
		}
	case "SS":
		if len(f) > 1 {
			c.stateMu.Lock()
			c.standby = f[1] == "true"
			c.stateMu.Unlock()
		}
	case "FC", "VC":
	default:
		logger.Warn("unknown asynchronous message")
	}
}

// processCall CS,id,conference,state,type,remote... 或 IC,id,conference,state,type,remote
func (c *Connector) processCall(ctx context.Context, f []string, incoming bool) {
	logger := c.Logger.WithField("message", strings.Join(f, delimiter))
	if len(f) < 4 {
		logger.Warn("malformed call status")
		return
	}
	id, err := strconv.Atoi(f[1])
	if err != nil {
		logger.Warn("call id is not an integer")
		return
	}
	callID := strconv.Itoa(id)
	state, known := callStates[f[3]]
	if !known {
		logger.WithField("state", f[3]).Debug("call state ignored")
	}
	if known && state == nil {
		c.stateMu.Lock()
		delete(c.calls, callID)
		c.stateMu.Unlock()
		logger.Debug("call terminated")
		return
	}

	c.stateMu.Lock()
	previous, exists := c.calls[callID]
	var wasConnected bool
	if exists {
		wasConnected = previous.State == types.CallConnected
	}
	c.stateMu.Unlock()

	// 新通话以及刚接通的通话会带出更多信息，重新查询一次
	if !exists || (state != nil && *state == types.CallConnected && !wasConnected) {
		if call := c.queryCall(ctx, callID); call != nil {
			c.stateMu.Lock()
			c.calls[callID] = call
			c.stateMu.Unlock()
			return
		}
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	call, ok := c.calls[callID]
	if !ok {
		call = &types.EndpointCall{ID: callID, State: types.CallConnecting, Incoming: incoming}
		c.calls[callID] = call
	}
	if state != nil {
		call.State = *state
	}
	remote := 6
	if incoming {
		remote = 5
	}
	if len(f) > remote && f[remote] != "" {
		call.RemoteAddress = f[remote]
	}
}

func (c *Connector) queryCall(ctx context.Context, callID string) *types.EndpointCall {
	lines, err := c.issue(ctx, "status call active", "-C", callID)
	if err != nil {
		c.Logger.WithError(err).WithField("call", callID).Warn("failed to get call status")
		return nil
	}
	if len(lines) == 0 {
		return nil
	}
	return c.parseCall(lines[0])
}

func (c *Connector) snapshot() *types.EndpointStatus {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	status := &types.EndpointStatus{
		Calls:        make([]types.EndpointCall, 0, len(c.calls)),
		Muted:        c.muted,
		Presentation: c.sending || c.receiving,
		Standby:      c.standby,
	}
	for _, call := range c.calls {
		status.Calls = append(status.Calls, *call)
	}
	sort.Slice(status.Calls, func(i, j int) bool {
		a, _ := strconv.Atoi(status.Calls[i].ID)
		b, _ := strconv.Atoi(status.Calls[j].ID)
		return a < b
	})
	return status
}

func (c *Connector) callIDs() map[string]struct{} {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	ids := make(map[string]struct{}, len(c.calls))
	for id := range c.calls {
		ids[id] = struct{}{}
	}
	return ids
}
