package websocket

import (
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// extractAck splits an optional acknowledgement callback off the end of an
// event's arguments.
func extractAck(datas []any) (socketio.Ack, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	if ack, ok := datas[len(datas)-1].(func([]any, error)); ok {
		return ack, datas[:len(datas)-1]
	}
	return nil, datas
}

func respondWithAck(ack socketio.Ack, payload map[string]any, ackErr error) {
	if ack == nil {
		return
	}
	ack([]any{payload}, ackErr)
}

func errorAck(err error) map[string]any {
	return map[string]any{
		"status": "error",
		"error":  err.Error(),
	}
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}
