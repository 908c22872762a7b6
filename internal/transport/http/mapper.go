package http

import (
	"encoding/json"
	"fmt"

	"github.com/beamlink/relay-server/internal/core"
	"github.com/beamlink/relay-server/internal/proto"
	"github.com/beamlink/relay-server/internal/store"
)

// inboundToCommand validates an inbound envelope and maps it to a core
// command. A non-nil CoreError means the payload was rejected and the client
// should get an error event; err means the envelope itself was unreadable.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *core.CoreError, error) {
	switch inbound.Type {
	case proto.InboundTypeCreateRoom:
		var data proto.CreateRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("malformed create_room payload"), nil
		}
		if data.Room == "" {
			return nil, badRequest("room is required"), nil
		}
		if data.Files == nil {
			return nil, badRequest("files is required"), nil
		}
		return &core.Command{
			Kind:  core.CommandCreateRoom,
			Room:  data.Room,
			Files: filesToStore(data.Files),
		}, nil, nil

	case proto.InboundTypeJoinRoom:
		var data proto.JoinRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("malformed join_room payload"), nil
		}
		if data.Room == "" {
			return nil, badRequest("room is required"), nil
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: data.Room}, nil, nil

	case proto.InboundTypeRequestMissingChunks:
		var data proto.RequestMissingChunksData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("malformed request_missing_chunks payload"), nil
		}
		if data.Room == "" {
			return nil, badRequest("room is required"), nil
		}
		return &core.Command{
			Kind:            core.CommandRequestMissingChunks,
			Room:            data.Room,
			FileIndex:       data.FileIndex,
			ReceivedIndexes: data.ReceivedIndexes,
		}, nil, nil

	case proto.InboundTypeChunkTransfer:
		var data proto.ChunkTransferData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("malformed chunk_transfer payload"), nil
		}
		if data.Room == "" && data.Recipient == "" {
			return nil, badRequest("room or recipient is required"), nil
		}
		return &core.Command{
			Kind:      core.CommandChunkTransfer,
			Room:      data.Room,
			Recipient: data.Recipient,
			Payload:   inbound.Data,
		}, nil, nil

	case proto.InboundTypeConfirmFileReceived:
		var data proto.ConfirmFileReceivedData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("malformed confirm_file_received payload"), nil
		}
		if data.Room == "" {
			return nil, badRequest("room is required"), nil
		}
		return &core.Command{
			Kind:      core.CommandConfirmFileReceived,
			Room:      data.Room,
			FileIndex: data.FileIndex,
		}, nil, nil

	default:
		return nil, badRequest(fmt.Sprintf("unknown event type %q", inbound.Type)), nil
	}
}

// outboundFromEvent maps a core event to its wire form.
func outboundFromEvent(ev *core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventRoomCreated:
		return proto.Outbound{
			Type: proto.OutboundTypeRoomCreated,
			Data: proto.RoomCreatedData{Room: ev.Room},
		}
	case core.EventFileList:
		return proto.Outbound{
			Type: proto.OutboundTypeFileList,
			Data: proto.FileListData{Files: filesToProto(ev.Files), Room: ev.Room},
		}
	case core.EventSendMissingChunks:
		return proto.Outbound{
			Type: proto.OutboundTypeSendMissingChunks,
			Data: proto.SendMissingChunksData{
				FileIndex:     ev.FileIndex,
				MissingChunks: ev.MissingChunks,
				Recipient:     ev.Recipient,
			},
		}
	case core.EventReceiveChunk:
		return proto.Outbound{
			Type: proto.OutboundTypeReceiveChunk,
			Data: ev.Payload,
		}
	case core.EventFileConfirmed:
		return proto.Outbound{
			Type: proto.OutboundTypeFileConfirmed,
			Data: proto.FileConfirmedData{FileIndex: ev.FileIndex, Recipient: ev.Recipient},
		}
	case core.EventRoomClosed:
		return proto.Outbound{
			Type: proto.OutboundTypeRoomClosed,
			Data: proto.RoomClosedData{},
		}
	case core.EventError:
		msg := "internal error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		return proto.Outbound{
			Type: proto.OutboundTypeError,
			Data: proto.ErrorData{Message: msg},
		}
	default:
		return proto.Outbound{
			Type: proto.OutboundTypeError,
			Data: proto.ErrorData{Message: "internal error"},
		}
	}
}

func badRequest(msg string) *core.CoreError {
	return &core.CoreError{Code: core.ErrCodeBadRequest, Message: msg}
}

func filesToStore(files []proto.FileInfo) []store.FileInfo {
	out := make([]store.FileInfo, len(files))
	for i, f := range files {
		out[i] = store.FileInfo{Name: f.Name, Size: f.Size, ChunkCount: f.ChunkCount}
	}
	return out
}

func filesToProto(files []store.FileInfo) []proto.FileInfo {
	out := make([]proto.FileInfo, len(files))
	for i, f := range files {
		out[i] = proto.FileInfo{Name: f.Name, Size: f.Size, ChunkCount: f.ChunkCount}
	}
	return out
}
