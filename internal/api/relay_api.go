// Package api exposes the FCM client over authenticated HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-fcm-relay/internal/metrics"
	"github.com/tinywideclouds/go-fcm-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// MaxBodyBytes caps request bodies. A full batch of maximum-size messages
// fits comfortably.
const MaxBodyBytes = 4 << 20

// RequestIDHeader carries the id the relay assigns to every call.
const RequestIDHeader = "X-Request-Id"

type RelayAPI struct {
	Sender   dispatch.Sender
	Topics   dispatch.TopicManager
	Recorder *metrics.Recorder
	Logger   *slog.Logger
}

func NewRelayAPI(sender dispatch.Sender, topics dispatch.TopicManager, recorder *metrics.Recorder, logger *slog.Logger) *RelayAPI {
	return &RelayAPI{
		Sender:   sender,
		Topics:   topics,
		Recorder: recorder,
		Logger:   logger.With("component", "RelayAPI"),
	}
}

type sendResponse struct {
	Name string `json:"name"`
}

// sessionFailure is the 502 body of a batch cut short by a session fault.
type sessionFailure struct {
	Error   *messaging.Error         `json:"error"`
	Partial *messaging.BatchResponse `json:"partial,omitempty"`
}

type topicRequest struct {
	Tokens []string `json:"tokens"`
}

// Send handles POST /api/v1/messages:send.
func (api *RelayAPI) Send(w http.ResponseWriter, r *http.Request) {
	req, logger, ok := api.decode(w, r, dispatch.KindSingle)
	if !ok {
		return
	}

	id, err := api.Sender.Send(r.Context(), req.Message, req.DryRun)
	api.Recorder.ObserveSend(err)
	if err != nil {
		logger.Warn("Send failed", "err", err)
		writeError(w, err)
		return
	}
	logger.Info("Message sent", "message_id", id)
	writeJSON(w, http.StatusOK, sendResponse{Name: id})
}

// SendEach handles POST /api/v1/messages:sendEach.
func (api *RelayAPI) SendEach(w http.ResponseWriter, r *http.Request) {
	req, logger, ok := api.decode(w, r, dispatch.KindBatch)
	if !ok {
		return
	}
	br, err := req.SendBatch(r.Context(), api.Sender)
	api.writeBatch(w, r, logger, br, err)
}

// SendMulticast handles POST /api/v1/messages:sendMulticast.
func (api *RelayAPI) SendMulticast(w http.ResponseWriter, r *http.Request) {
	req, logger, ok := api.decode(w, r, dispatch.KindMulticast)
	if !ok {
		return
	}
	br, err := api.Sender.SendEachForMulticast(r.Context(), req.Multicast, req.DryRun)
	api.writeBatch(w, r, logger, br, err)
}

// ManageTopic handles POST /api/v1/topics/{topicAction}, where the path
// segment is "<topic>:subscribe" or "<topic>:unsubscribe".
func (api *RelayAPI) ManageTopic(w http.ResponseWriter, r *http.Request) {
	logger, ok := api.caller(w, r)
	if !ok {
		return
	}

	segment := r.PathValue("topicAction")
	sep := strings.LastIndex(segment, ":")
	if sep <= 0 {
		response.WriteJSONError(w, http.StatusNotFound, "unknown topic action")
		return
	}
	topic, action := segment[:sep], segment[sep+1:]

	var body topicRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&body); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var (
		resp *messaging.TopicManagementResponse
		err  error
	)
	switch action {
	case "subscribe":
		resp, err = api.Topics.SubscribeToTopic(r.Context(), body.Tokens, topic)
	case "unsubscribe":
		resp, err = api.Topics.UnsubscribeFromTopic(r.Context(), body.Tokens, topic)
	default:
		response.WriteJSONError(w, http.StatusNotFound, "unknown topic action")
		return
	}
	logger = logger.With("topic", topic, "action", action)
	if err != nil {
		logger.Warn("Topic management failed", "err", err)
		writeError(w, err)
		return
	}
	logger.Info("Topic membership updated",
		"success_count", resp.SuccessCount,
		"failure_count", resp.FailureCount)
	writeJSON(w, http.StatusOK, resp)
}

// caller resolves the authenticated identity and tags the request.
func (api *RelayAPI) caller(w http.ResponseWriter, r *http.Request) (*slog.Logger, bool) {
	userID, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	requestID := uuid.NewString()
	w.Header().Set(RequestIDHeader, requestID)

	logger := api.Logger.With("request_id", requestID)
	if userURN, err := urn.Parse(userID); err == nil {
		logger = logger.With("user", userURN.String())
	} else {
		logger = logger.With("user", userID)
	}
	return logger, true
}

func (api *RelayAPI) decode(w http.ResponseWriter, r *http.Request, want dispatch.Kind) (*dispatch.Request, *slog.Logger, bool) {
	logger, ok := api.caller(w, r)
	if !ok {
		return nil, nil, false
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		response.WriteJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, nil, false
	}
	req, err := dispatch.DecodeRequest(data)
	if err != nil {
		logger.Debug("Rejected request body", "err", err)
		writeError(w, err)
		return nil, nil, false
	}
	if req.Kind() != want {
		response.WriteJSONError(w, http.StatusBadRequest, "request does not match endpoint: expected "+string(want))
		return nil, nil, false
	}
	return req, logger.With("dry_run", req.DryRun, "size", req.Size()), true
}

func (api *RelayAPI) writeBatch(w http.ResponseWriter, r *http.Request, logger *slog.Logger, br *messaging.BatchResponse, err error) {
	var serr *messaging.SessionError
	if errors.As(err, &serr) {
		partial, waitErr := serr.PendingBatchResponse().Wait(r.Context())
		api.Recorder.ObserveBatch(partial, err)
		logger.Error("Batch cut short by session failure", "err", err)
		body := sessionFailure{Error: serr.Reason}
		if waitErr == nil {
			body.Partial = partial
		}
		writeJSON(w, http.StatusBadGateway, body)
		return
	}
	if err != nil {
		api.Recorder.ObserveSend(err)
		logger.Warn("Batch rejected", "err", err)
		writeError(w, err)
		return
	}

	api.Recorder.ObserveBatch(br, nil)
	logger.Info("Batch sent", "success_count", br.SuccessCount, "failure_count", br.FailureCount)
	writeJSON(w, http.StatusOK, br)
}

// writeError answers with the mapped code and message of err.
func writeError(w http.ResponseWriter, err error) {
	var me *messaging.Error
	if !errors.As(err, &me) {
		response.WriteJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, httpStatus(me.Code), struct {
		Error *messaging.Error `json:"error"`
	}{Error: me})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
