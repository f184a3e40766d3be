package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// NewBrokerHandler mounts a BrokerService behind /produce and /fetch,
// routing by URL path rather than by a wire-protocol API key.
func NewBrokerHandler(svc BrokerService, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/produce", func(w http.ResponseWriter, r *http.Request) {
		var req ProduceRequest
		if !decode(w, r, &req, log) {
			return
		}
		resp, err := svc.Produce(r.Context(), req)
		writeJSON(w, resp, err, log)
	})
	mux.HandleFunc("/fetch", func(w http.ResponseWriter, r *http.Request) {
		var req FetchRequest
		if !decode(w, r, &req, log) {
			return
		}
		resp, err := svc.Fetch(r.Context(), req)
		writeJSON(w, resp, err, log)
	})
	return mux
}

// NewControllerHandler mounts a ControllerService behind its four RPCs.
func NewControllerHandler(svc ControllerService, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/create-topic", func(w http.ResponseWriter, r *http.Request) {
		var req CreateTopicRequest
		if !decode(w, r, &req, log) {
			return
		}
		resp, err := svc.CreateTopic(r.Context(), req)
		writeJSON(w, resp, err, log)
	})
	mux.HandleFunc("/describe-topic", func(w http.ResponseWriter, r *http.Request) {
		var req DescribeTopicRequest
		if !decode(w, r, &req, log) {
			return
		}
		resp, err := svc.DescribeTopic(r.Context(), req)
		writeJSON(w, resp, err, log)
	})
	mux.HandleFunc("/find-leader", func(w http.ResponseWriter, r *http.Request) {
		var req FindLeaderRequest
		if !decode(w, r, &req, log) {
			return
		}
		resp, err := svc.FindLeader(r.Context(), req)
		writeJSON(w, resp, err, log)
	})
	mux.HandleFunc("/list-topics", func(w http.ResponseWriter, r *http.Request) {
		var req ListTopicsRequest
		if !decode(w, r, &req, log) {
			return
		}
		resp, err := svc.ListTopics(r.Context(), req)
		writeJSON(w, resp, err, log)
	})
	return mux
}

// NewCoordinatorHandler mounts a CoordinatorService behind its two RPCs.
func NewCoordinatorHandler(svc CoordinatorService, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/commit-offset", func(w http.ResponseWriter, r *http.Request) {
		var req CommitOffsetRequest
		if !decode(w, r, &req, log) {
			return
		}
		resp, err := svc.CommitOffset(r.Context(), req)
		writeJSON(w, resp, err, log)
	})
	mux.HandleFunc("/poll-assignment", func(w http.ResponseWriter, r *http.Request) {
		var req PollAssignmentRequest
		if !decode(w, r, &req, log) {
			return
		}
		resp, err := svc.PollAssignment(r.Context(), req)
		writeJSON(w, resp, err, log)
	})
	return mux
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}, log *slog.Logger) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Warn("decode request failed", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, resp interface{}, err error, log *slog.Logger) {
	if err != nil {
		log.Debug("rpc handler returned error", "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Warn("encode response failed", "err", encErr)
	}
}

// Client is a minimal JSON-over-HTTP client shared by the three services.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against baseURL (e.g. "http://localhost:9092").
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *Client) call(ctx context.Context, path string, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, jsonReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	return json.NewDecoder(httpResp.Body).Decode(resp)
}

func jsonReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

// Produce calls the broker's /produce RPC.
func (c *Client) Produce(ctx context.Context, req ProduceRequest) (ProduceResponse, error) {
	var resp ProduceResponse
	err := c.call(ctx, "/produce", req, &resp)
	return resp, err
}

// Fetch calls the broker's /fetch RPC.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	var resp FetchResponse
	err := c.call(ctx, "/fetch", req, &resp)
	return resp, err
}

// PollAssignment calls the coordinator's /poll-assignment RPC.
func (c *Client) PollAssignment(ctx context.Context, req PollAssignmentRequest) (PollAssignmentResponse, error) {
	var resp PollAssignmentResponse
	err := c.call(ctx, "/poll-assignment", req, &resp)
	return resp, err
}

// CommitOffset calls the coordinator's /commit-offset RPC.
func (c *Client) CommitOffset(ctx context.Context, req CommitOffsetRequest) (CommitOffsetResponse, error) {
	var resp CommitOffsetResponse
	err := c.call(ctx, "/commit-offset", req, &resp)
	return resp, err
}

// DescribeTopic calls the controller's /describe-topic RPC.
func (c *Client) DescribeTopic(ctx context.Context, req DescribeTopicRequest) (DescribeTopicResponse, error) {
	var resp DescribeTopicResponse
	err := c.call(ctx, "/describe-topic", req, &resp)
	return resp, err
}

// CreateTopic calls the controller's /create-topic RPC.
func (c *Client) CreateTopic(ctx context.Context, req CreateTopicRequest) (CreateTopicResponse, error) {
	var resp CreateTopicResponse
	err := c.call(ctx, "/create-topic", req, &resp)
	return resp, err
}

// FindLeader calls the controller's /find-leader RPC.
func (c *Client) FindLeader(ctx context.Context, req FindLeaderRequest) (FindLeaderResponse, error) {
	var resp FindLeaderResponse
	err := c.call(ctx, "/find-leader", req, &resp)
	return resp, err
}

// ListTopics calls the controller's /list-topics RPC.
func (c *Client) ListTopics(ctx context.Context, req ListTopicsRequest) (ListTopicsResponse, error) {
	var resp ListTopicsResponse
	err := c.call(ctx, "/list-topics", req, &resp)
	return resp, err
}
