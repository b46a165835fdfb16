package mutator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/inference-sim/adascale/scaler"
	"github.com/inference-sim/adascale/scaler/roster"
)

// DefaultBaseURL is the cluster manager address used by the original deployment.
const DefaultBaseURL = "http://127.0.0.1:9100"

// HTTP POSTs worker descriptors as JSON to <base>/addworker and
// <base>/removeworker, with the resulting pool size in the size query
// parameter. Any status other than 200 is a rejection.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
	*stepper
}

var _ scaler.ClusterMutator = (*HTTP)(nil)

// NewHTTP creates an HTTP mutator for a pool currently at initial workers.
// An empty baseURL means DefaultBaseURL. Panics if r is nil or initial < 1.
func NewHTTP(baseURL string, r *roster.Roster, initial int) *HTTP {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	m := &HTTP{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	m.stepper = newStepper(r, initial, m)
	return m
}

// Resize adds or removes workers until the pool has target workers.
func (m *HTTP) Resize(ctx context.Context, target int) error {
	return m.resize(ctx, target)
}

// Size returns the pool size as last acknowledged by the cluster manager.
func (m *HTTP) Size() int { return m.size() }

func (m *HTTP) send(ctx context.Context, c change) error {
	body, err := json.Marshal(c.Worker)
	if err != nil {
		return scaler.Rejected(c.Target, fmt.Sprintf("encoding worker descriptor: %v", err))
	}
	u := m.baseURL + "/" + string(c.Op) + "?" + url.Values{sizeParam: {strconv.Itoa(c.Size)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return scaler.Unreachable(c.Target, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return scaler.TransportError(c.Target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return scaler.Rejected(c.Target, fmt.Sprintf("%s: HTTP %d: %s", c.Op, resp.StatusCode, strings.TrimSpace(string(data))))
	}
	return nil
}

const sizeParam = "size"

// NewHTTPHandler serves /addworker and /removeworker with h, answering 200 on
// success and 409 with the error text otherwise. A request without a size
// parameter is applied unconditionally.
func NewHTTPHandler(h Handler) http.Handler {
	mux := http.NewServeMux()
	for _, op := range []Op{OpAdd, OpRemove} {
		op := op
		mux.HandleFunc("POST /"+string(op), func(w http.ResponseWriter, r *http.Request) {
			size := 0
			if v := r.URL.Query().Get(sizeParam); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 {
					http.Error(w, fmt.Sprintf("invalid pool size %q", v), http.StatusBadRequest)
					return
				}
				size = n
			}
			var worker roster.Worker
			if err := json.NewDecoder(r.Body).Decode(&worker); err != nil {
				http.Error(w, fmt.Sprintf("malformed worker descriptor: %v", err), http.StatusBadRequest)
				return
			}
			var err error
			if op == OpAdd {
				err = h.AddWorker(size, worker)
			} else {
				err = h.RemoveWorker(size, worker)
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	}
	return mux
}
