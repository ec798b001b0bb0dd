package fabmo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
)

// fakeEngine reports busyState ("running" when empty) for busyPolls status
// requests after each program.
type fakeEngine struct {
	mx        sync.Mutex
	busyState string
	busyPolls int
	remaining int
	posz      interface{}
	codes     []string
	saved     []byte
	fail      bool
}

func (f *fakeEngine) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	f.mx.Lock()
	defer f.mx.Unlock()

	reply := func(data interface{}) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "success", "data": data})
	}
	switch req.Method + " " + req.URL.Path {
	case "POST /code":
		if f.fail {
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "error", "message": "machine is busy"})
			return
		}
		var body codeRequest
		json.NewDecoder(req.Body).Decode(&body)
		f.codes = append(f.codes, body.Cmd+":"+body.Code)
		f.remaining = f.busyPolls
		reply(nil)
	case "GET /status":
		state := "idle"
		if f.remaining > 0 {
			f.remaining--
			state = "running"
			if f.busyState != "" {
				state = f.busyState
			}
		}
		reply(map[string]interface{}{"status": map[string]interface{}{
			"state": state, "posx": 1, "posy": 2, "posz": f.posz,
		}})
	case "GET /config":
		w.Write([]byte(`{"status":"success","data":{"config":{"opensbp":{"variables":{
			"ATC":{"NUMCLIPS":4,"TOOLIN":3},"TOOLS":{"0":{"type":"Straight"}}}}}}}`))
	case "PUT /config/opensbp.json":
		f.saved, _ = io.ReadAll(req.Body)
	default:
		http.NotFound(w, req)
	}
}

func newTestClient(t *testing.T, f *fakeEngine) *Client {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		URL:          srv.URL + "/",
		PollInterval: time.Millisecond,
		StartGrace:   20 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(Config{URL: "ftp://example.com"})
	assert.Error(t, err)
}

func TestClient_RunSBP_WaitsForIdle(t *testing.T) {
	f := &fakeEngine{busyPolls: 3, posz: 0}
	c := newTestClient(t, f)

	require.NoError(t, c.RunSBP(context.Background(), "&Tool=2\nC71\n"))

	f.mx.Lock()
	defer f.mx.Unlock()
	assert.Equal(t, []string{"sbp:&Tool=2\nC71\n"}, f.codes)
	assert.Equal(t, 0, f.remaining)
}

func TestClient_RunSBP_NeverStarts(t *testing.T) {
	f := &fakeEngine{posz: 0}
	c := newTestClient(t, f)

	start := time.Now()
	require.NoError(t, c.RunSBP(context.Background(), "C2\n"))
	assert.True(t, time.Since(start) >= 20*time.Millisecond)
}

func TestClient_RunSBP_Canceled(t *testing.T) {
	f := &fakeEngine{busyPolls: 1 << 30, posz: 0}
	c := newTestClient(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.RunSBP(ctx, "C3\n")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_RunSBP_Stopped(t *testing.T) {
	for _, state := range []string{"stopped", "dead", "Stopped"} {
		f := &fakeEngine{busyState: state, busyPolls: 1 << 30, posz: 0}
		c := newTestClient(t, f)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.RunSBP(ctx, "C71\n")
		cancel()
		assert.ErrorIs(t, err, ErrStopped, state)
		assert.NotErrorIs(t, err, context.DeadlineExceeded, state)
	}
}

func TestClient_RunSBP_EngineError(t *testing.T) {
	f := &fakeEngine{fail: true}
	c := newTestClient(t, f)

	err := c.RunSBP(context.Background(), "C3\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "machine is busy")
}

func TestClient_Status(t *testing.T) {
	f := &fakeEngine{posz: "1.375"}
	c := newTestClient(t, f)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Idle())
	assert.Equal(t, 1.0, st.Pos.X)
	assert.Equal(t, 2.0, st.Pos.Y)
	assert.Equal(t, 1.375, st.Pos.Z)
}

func TestClient_Config(t *testing.T) {
	c := newTestClient(t, &fakeEngine{})

	cfg, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.SlotCount())
	assert.Equal(t, 3, cfg.ToolIn())
	require.Len(t, cfg.Tools(), 1)
	assert.Equal(t, "Straight", cfg.Tools()[0].Type)
}

func TestClient_Save(t *testing.T) {
	f := &fakeEngine{}
	c := newTestClient(t, f)

	err := c.Save(context.Background(), atc.Document{
		ATC:   atc.ATCState{NumClips: 1, ToolIn: 1, Status: atc.StatusAttached},
		Tools: map[string]atc.Tool{"0": {Type: "Straight", Size: "Small"}},
	})
	require.NoError(t, err)

	f.mx.Lock()
	defer f.mx.Unlock()
	assert.JSONEq(t, `{
		"ATC": {"NUMCLIPS": 1, "TOOLIN": 1, "STATUS": "OK"},
		"TOOLS": {"0": {"type": "Straight", "size": "Small", "h": null}}
	}`, string(f.saved))
}

func TestClient_Save_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "read only", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL})
	require.NoError(t, err)

	err = c.Save(context.Background(), atc.Document{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
