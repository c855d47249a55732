package http

import (
	"encoding/json"

	"github.com/knagata/memosync-server/internal/core"
	"github.com/knagata/memosync-server/proto"
)

func inboundToCommand(sess *core.Session, inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.TypeJoinRequest:
		var join proto.JoinRequestData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		cmd := &core.Command{
			Kind:     core.CommandJoinRoom,
			Room:     join.RoomID,
			Password: join.Password,
		}
		// A verified connection identity wins over whatever the join
		// request claims.
		if !sess.IdentityVerified {
			cmd.Username = join.Username
			cmd.UserID = join.UserID
		}
		return cmd, nil, nil

	case proto.TypeLeaveRoom:
		var leave proto.RoomRefData
		if err := json.Unmarshal(inbound.Data, &leave); err != nil {
			return nil, nil, err
		}
		return &core.Command{Kind: core.CommandLeaveRoom, Room: leave.RoomID}, nil, nil

	case proto.TypeCloseRoom:
		var closeReq proto.RoomRefData
		if err := json.Unmarshal(inbound.Data, &closeReq); err != nil {
			return nil, nil, err
		}
		if closeReq.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{Kind: core.CommandCloseRoom, Room: closeReq.RoomID}, nil, nil

	case proto.TypeTextUpdate:
		var text proto.TextUpdateData
		if err := json.Unmarshal(inbound.Data, &text); err != nil {
			return nil, nil, err
		}
		if text.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{
			Kind:    core.CommandTextUpdate,
			Room:    text.RoomID,
			Content: text.Content,
		}, nil, nil

	case proto.TypeCanvasUpdate:
		var canvas proto.CanvasUpdateData
		if err := json.Unmarshal(inbound.Data, &canvas); err != nil {
			return nil, nil, err
		}
		if canvas.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{
			Kind:       core.CommandCanvasUpdate,
			Room:       canvas.RoomID,
			CanvasData: canvas.CanvasData,
		}, nil, nil

	case proto.TypeColorUpdate:
		var color proto.ColorUpdateData
		if err := json.Unmarshal(inbound.Data, &color); err != nil {
			return nil, nil, err
		}
		if color.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{
			Kind:  core.CommandColorUpdate,
			Room:  color.RoomID,
			Color: color.Color,
		}, nil, nil

	case proto.TypeCursorMove:
		var cursor proto.CursorMoveData
		if err := json.Unmarshal(inbound.Data, &cursor); err != nil {
			return nil, nil, err
		}
		if cursor.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{
			Kind: core.CommandCursorMove,
			Room: cursor.RoomID,
			Cursor: &core.CursorState{
				X:    cursor.X,
				Y:    cursor.Y,
				Mode: cursor.Mode,
			},
		}, nil, nil

	case proto.TypeRequestSync:
		var req proto.RoomRefData
		if err := json.Unmarshal(inbound.Data, &req); err != nil {
			return nil, nil, err
		}
		if req.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{Kind: core.CommandRequestSync, Room: req.RoomID}, nil, nil

	case proto.TypeSyncResponse:
		var resp proto.SyncResponseData
		if err := json.Unmarshal(inbound.Data, &resp); err != nil {
			return nil, nil, err
		}
		if resp.TargetID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "targetId is required"}, nil
		}
		return &core.Command{
			Kind:       core.CommandSyncResponse,
			TargetConn: resp.TargetID,
			Bundle: &core.SyncBundle{
				Title:       resp.Title,
				Content:     resp.Content,
				CanvasData:  resp.CanvasData,
				Color:       resp.Color,
				Category:    resp.Category,
				Attribution: resp.Attribution,
			},
		}, nil, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomCounts:
		return proto.Outbound{
			Type: proto.TypeRoomCountsUpdate,
			Data: proto.RoomCountsData{Counts: event.Counts},
		}
	case core.EventRoomUsers:
		users := make([]proto.RoomUser, 0, len(event.Users))
		for _, m := range event.Users {
			users = append(users, proto.RoomUser{
				ConnectionID: m.ConnID,
				Username:     m.Username,
				UserID:       m.UserID,
			})
		}
		return proto.Outbound{
			Type: proto.TypeRoomUsersUpdate,
			Data: proto.RoomUsersData{RoomID: event.Room, Users: users},
		}
	case core.EventJoinSuccess:
		return proto.Outbound{
			Type: proto.TypeJoinSuccess,
			Data: proto.JoinSuccessData{RoomID: event.Room},
		}
	case core.EventJoinFailed:
		data := proto.JoinFailedData{RoomID: event.Room, Reason: "join failed"}
		if event.Error != nil {
			data.Code = event.Error.Code
			data.Reason = event.Error.Message
		}
		return proto.Outbound{Type: proto.TypeJoinFailed, Data: data}
	case core.EventTextUpdate:
		return proto.Outbound{
			Type: proto.TypeTextUpdate,
			Data: proto.TextUpdateData{Content: event.Content, UserID: event.FromUserID},
		}
	case core.EventCanvasUpdate:
		return proto.Outbound{
			Type: proto.TypeCanvasUpdate,
			Data: proto.CanvasUpdateData{CanvasData: event.CanvasData},
		}
	case core.EventColorUpdate:
		return proto.Outbound{
			Type: proto.TypeColorUpdate,
			Data: proto.ColorUpdateData{Color: event.Color},
		}
	case core.EventCursorMove:
		data := proto.CursorMoveData{}
		if event.Cursor != nil {
			data = proto.CursorMoveData{
				ConnectionID: event.Cursor.ConnID,
				UserID:       event.Cursor.UserID,
				Username:     event.Cursor.Username,
				X:            event.Cursor.X,
				Y:            event.Cursor.Y,
				Mode:         event.Cursor.Mode,
			}
		}
		return proto.Outbound{Type: proto.TypeCursorMove, Data: data}
	case core.EventRequestSync:
		return proto.Outbound{
			Type: proto.TypeRequestSync,
			Data: proto.RequestSyncData{RequesterID: event.RequesterID},
		}
	case core.EventSyncResponse:
		data := proto.SyncResponseData{}
		if event.Bundle != nil {
			data.SyncBundle = proto.SyncBundle{
				Title:       event.Bundle.Title,
				Content:     event.Bundle.Content,
				CanvasData:  event.Bundle.CanvasData,
				Color:       event.Bundle.Color,
				Category:    event.Bundle.Category,
				Attribution: event.Bundle.Attribution,
			}
		}
		return proto.Outbound{Type: proto.TypeSyncResponse, Data: data}
	case core.EventRoomClosed:
		return proto.Outbound{
			Type: proto.TypeRoomClosed,
			Data: proto.RoomClosedData{RoomID: event.Room},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.TypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.TypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.TypeError, Error: &proto.Error{Code: "unknown", Msg: "unmapped event"}}
	}
}
