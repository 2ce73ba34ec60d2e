package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qlab-core/qcore/internal/assemble"
	"github.com/qlab-core/qcore/internal/compiler"
	"github.com/qlab-core/qcore/internal/driver"
	"github.com/qlab-core/qcore/internal/interfaces"
	"github.com/qlab-core/qcore/internal/registry"
	"github.com/qlab-core/qcore/internal/runtime"
	"github.com/qlab-core/qcore/internal/server"
	"github.com/qlab-core/qcore/internal/uapi"
	"github.com/qlab-core/qcore/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDriver struct{}

func (stubDriver) Open(map[string]value.Value) error { return nil }
func (stubDriver) Close() error                       { return nil }
func (stubDriver) Read(ctx context.Context, quantity string, opts map[string]value.Value) (value.Value, error) {
	return value.Array{0.1, 0.2}, nil
}
func (stubDriver) Write(ctx context.Context, quantity string, v value.Value, opts map[string]value.Value) error {
	return nil
}
func (stubDriver) Channels() []int                  { return []int{0} }
func (stubDriver) Quantities() []interfaces.Quantity { return nil }
func (stubDriver) SampleRate() (float64, bool)       { return 1e9, true }

type stubCompiler struct{}

func (stubCompiler) Compile(ctx interfaces.CompileContext, circuit []interfaces.GateOp) (map[string][]interfaces.Command, interfaces.DataMap, error) {
	return map[string][]interfaces.Command{}, interfaces.DataMap{}, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	reg := registry.New()
	asm := assemble.New()
	mux := driver.New(nil)
	require.NoError(t, mux.Open(context.Background(), "AWG1", stubDriver{}, nil))
	rt := runtime.NewRuntime(reg, compiler.NewAdapter(stubCompiler{}), asm, mux, nil)
	srv := server.New(rt)
	t.Cleanup(func() { srv.Close() })
	return NewHandler(srv)
}

func TestSubmitAndTrackRoundTrip(t *testing.T) {
	h := newTestHandler(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	spec := uapi.WireTaskSpec{
		Name:   "ramsey",
		Signal: "result",
		Steps: []uapi.WireStepDef{
			{Name: "readout", Command: uapi.ToWireCommand(interfaces.Command{Type: interfaces.Read, Target: "AWG1.CH1.IQ"})},
		},
	}
	data, err := json.Marshal(spec)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/v1/submit", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitOut map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitOut))
	tid := submitOut["tid"]
	require.NotEmpty(t, tid)

	deadline := time.Now().Add(2 * time.Second)
	var state string
	for time.Now().Before(deadline) {
		trackResp, err := http.Get(ts.URL + "/v1/track?tid=" + tid)
		require.NoError(t, err)
		var out map[string]string
		require.NoError(t, json.NewDecoder(trackResp.Body).Decode(&out))
		trackResp.Body.Close()
		state = out["state"]
		if state == "Finished" || state == "Failed" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, "Finished", state)
}

func TestTrackUnknownTaskReturns404(t *testing.T) {
	h := newTestHandler(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/track?tid=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateThenQueryRoundTrip(t *testing.T) {
	h := newTestHandler(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	createBody, _ := json.Marshal(map[string]any{"path": "cal.Q1.freq", "value": 5e9})
	resp, err := http.Post(ts.URL+"/v1/create", "application/json", bytes.NewReader(createBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	queryBody, _ := json.Marshal(map[string]any{"path": "cal.Q1.freq"})
	resp, err = http.Post(ts.URL+"/v1/query", "application/json", bytes.NewReader(queryBody))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, 5e9, out["value"])
}
