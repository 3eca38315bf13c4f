package binance

import (
	"encoding/json"
	"fmt"
)

type Method string

const (
	MethodSubscribe   Method = "SUBSCRIBE"
	MethodUnsubscribe Method = "UNSUBSCRIBE"
)

// StreamRequest is the control message sent to manage subscriptions.
type StreamRequest struct {
	Method Method   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func NewSubscribe(streams []string, id int64) StreamRequest {
	return StreamRequest{Method: MethodSubscribe, Params: streams, ID: id}
}

func NewUnsubscribe(streams []string, id int64) StreamRequest {
	return StreamRequest{Method: MethodUnsubscribe, Params: streams, ID: id}
}

// StreamResponse is the server's reply to a StreamRequest.
type StreamResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *ResponseError  `json:"error,omitempty"`
}

type ResponseError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("binance error %d: %s", e.Code, e.Msg)
}

// ParseResponse reports whether raw is a reply to a StreamRequest, i.e. an
// object with an "id" and a "result" or "error" key. A successful
// subscription reply carries "result": null.
func ParseResponse(raw []byte) (StreamResponse, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return StreamResponse{}, false
	}
	rawID, ok := fields["id"]
	if !ok {
		return StreamResponse{}, false
	}
	result, hasResult := fields["result"]
	rawErr, hasError := fields["error"]
	if !hasResult && !hasError {
		return StreamResponse{}, false
	}

	var resp StreamResponse
	if err := json.Unmarshal(rawID, &resp.ID); err != nil {
		return StreamResponse{}, false
	}
	resp.Result = result
	if hasError && !isNull(rawErr) {
		resp.Error = &ResponseError{}
		if err := json.Unmarshal(rawErr, resp.Error); err != nil {
			return StreamResponse{}, false
		}
	}
	return resp, true
}
