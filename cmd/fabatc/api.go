package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/sbp"
)

const maxValueSize = 4096

// errNoRegistry is returned by tool routes until a tool configuration has
// been read from the engine.
var errNoRegistry = errors.New("tool configuration not loaded")

type api struct {
	http.Handler
	m       *machine.Machine
	log     *zap.Logger
	dataDir string

	// reload reads the tool configuration again for POST /api/reload.
	reload func(context.Context) (*atc.Registry, error)

	mx   sync.Mutex
	reg  *atc.Registry
	ctx  context.Context
	stop context.CancelFunc

	sse      *sse.Server
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
}

func newAPI(reg *atc.Registry, m *machine.Machine, dir string, log *zap.Logger) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		reg:     reg,
		m:       m,
		log:     log,
		dataDir: dir,
		sse: sse.NewServer(&sse.Options{
			Logger: discardLogger(),
		}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s := r.PathPrefix("/api").Subrouter()
	s.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
	s.HandleFunc("/reload", a.reloadTools).Methods("POST")
	s.HandleFunc("/tools", a.tools).Methods("GET")
	s.HandleFunc("/tools/{index:[0-9]+}/change", a.changeTool).Methods("POST")
	s.HandleFunc("/tools/{index:[0-9]+}/measure", a.measure(false)).Methods("POST")
	s.HandleFunc("/tools/{index:[0-9]+}/{attr}", a.updateAttribute(false)).Methods("PUT")
	s.HandleFunc("/offbar/{index:[0-9]+}/select", a.selectOffBar).Methods("POST")
	s.HandleFunc("/offbar/{index:[0-9]+}/measure", a.measure(true)).Methods("POST")
	s.HandleFunc("/offbar/{index:[0-9]+}/{attr}", a.updateAttribute(true)).Methods("PUT")
	s.HandleFunc("/machine", a.status).Methods("GET")
	s.HandleFunc("/machine/{routine}", a.routine).Methods("POST")
	s.HandleFunc("/run", a.run).Methods("POST")

	r.PathPrefix("/events/").Handler(a.sse)
	r.HandleFunc("/ws", a.ws)

	fs := http.FileServer(http.Dir(dir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))
	r.PathPrefix("/").MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
		return !strings.HasPrefix(req.URL.Path, "/api/")
	}).Handler(fs)

	return a
}

func discardLogger() *log.Logger { return log.New(ioutil.Discard, "", 0) }

// start pushes registry snapshots to /events/tools and polls machine status
// for /events/machine until ctx is done.
func (a *api) start(ctx context.Context, poll time.Duration) {
	a.mx.Lock()
	a.ctx = ctx
	a.forwardLocked()
	a.mx.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(poll)
		defer t.Stop()
		var last machine.State
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			st, err := a.m.Status(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.log.Warn("poll machine status", zap.Error(err))
				}
				continue
			}
			if st == last {
				continue
			}
			last = st
			a.send("/events/machine", st)
		}
	}()
}

// forwardLocked replaces the snapshot forwarder with one for the current registry.
func (a *api) forwardLocked() {
	if a.stop != nil {
		a.stop()
		a.stop = nil
	}
	if a.ctx == nil || a.reg == nil {
		return
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.stop = cancel
	updates := a.reg.Updates()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-updates:
				a.send("/events/tools", snap)
			}
		}
	}()
}

// current returns the loaded registry, or nil before the first successful load.
func (a *api) current() *atc.Registry {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.reg
}

func (a *api) setRegistry(reg *atc.Registry) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.reg = reg
	a.forwardLocked()
}

// registry is current for tool routes; it answers 503 when nothing is loaded.
func (a *api) registry(w http.ResponseWriter) *atc.Registry {
	reg := a.current()
	if reg == nil {
		a.fail(w, "tools", errNoRegistry)
	}
	return reg
}

// Close stops the event streams. The context given to start must be done first.
func (a *api) Close() {
	a.wg.Wait()
	a.mx.Lock()
	if a.stop != nil {
		a.stop()
		a.stop = nil
	}
	a.mx.Unlock()
	a.sse.Shutdown()
}

func (a *api) send(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Error("marshal json", zap.Error(err))
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
}

// httpStatus maps registry and machine errors to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, errNoRegistry):
		return http.StatusServiceUnavailable
	case errors.Is(err, atc.ErrInvalidSlot),
		errors.Is(err, atc.ErrUnknownAttribute),
		errors.Is(err, sbp.ErrInvalidLine):
		return http.StatusBadRequest
	case errors.Is(err, atc.ErrOffBarTool),
		errors.Is(err, atc.ErrChangeInProgress),
		errors.Is(err, machine.ErrNotIdle):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (a *api) fail(w http.ResponseWriter, op string, err error) {
	code := httpStatus(err)
	if code >= 500 {
		a.log.Error(op, zap.Error(err))
	} else {
		a.log.Info(op, zap.Int("code", code), zap.Error(err))
	}
	http.Error(w, err.Error(), code)
}

func (a *api) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.Error("encode", zap.Error(err))
	}
}

// index returns the 0-based index for the 1-based {index} route variable.
func index(req *http.Request) int {
	n, err := strconv.Atoi(mux.Vars(req)["index"])
	if err != nil {
		return -1
	}
	return n - 1
}

func (a *api) reloadTools(w http.ResponseWriter, req *http.Request) {
	if a.reload == nil {
		a.fail(w, "reload tools", errNoRegistry)
		return
	}
	reg, err := a.reload(req.Context())
	if err != nil {
		a.fail(w, "reload tools", fmt.Errorf("%w: %w", errNoRegistry, err))
		return
	}
	a.setRegistry(reg)
	snap := reg.Snapshot()
	a.send("/events/tools", snap)
	a.writeJSON(w, snap)
}

func (a *api) tools(w http.ResponseWriter, req *http.Request) {
	reg := a.registry(w)
	if reg == nil {
		return
	}
	a.writeJSON(w, reg.Snapshot())
}

// changeTool keeps going when the client goes away; a half finished change
// must still record the loaded slot.
func (a *api) changeTool(w http.ResponseWriter, req *http.Request) {
	reg := a.registry(w)
	if reg == nil {
		return
	}
	err := reg.ChangeTool(context.WithoutCancel(req.Context()), index(req))
	if err != nil {
		a.fail(w, "change tool", err)
		return
	}
	a.writeJSON(w, reg.Snapshot())
}

func (a *api) selectOffBar(w http.ResponseWriter, req *http.Request) {
	reg := a.registry(w)
	if reg == nil {
		return
	}
	err := reg.SelectOffBar(index(req))
	if err != nil {
		a.fail(w, "select off-bar tool", err)
		return
	}
}

func (a *api) measure(offBar bool) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reg := a.registry(w)
		if reg == nil {
			return
		}
		err := reg.RequestMeasurement(req.Context(), index(req), offBar)
		if err != nil {
			a.fail(w, "measure tool", err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (a *api) updateAttribute(offBar bool) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reg := a.registry(w)
		if reg == nil {
			return
		}
		attr, err := atc.ParseAttribute(mux.Vars(req)["attr"])
		if err != nil {
			a.fail(w, "update tool", err)
			return
		}
		data, err := ioutil.ReadAll(http.MaxBytesReader(w, req.Body, maxValueSize))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = reg.UpdateAttribute(req.Context(), index(req), attr, strings.TrimSpace(string(data)), offBar)
		if err != nil {
			a.fail(w, "update tool", err)
			return
		}
		a.writeJSON(w, reg.Snapshot())
	}
}

func (a *api) status(w http.ResponseWriter, req *http.Request) {
	st, err := a.m.Status(req.Context())
	if err != nil {
		a.fail(w, "machine status", err)
		return
	}
	a.writeJSON(w, st)
}

func (a *api) routine(w http.ResponseWriter, req *http.Request) {
	r, err := machine.ParseRoutine(mux.Vars(req)["routine"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	a.log.Info("running routine", zap.String("routine", string(r)))
	err = a.m.RunRoutine(req.Context(), r)
	if err != nil {
		a.fail(w, "routine "+string(r), err)
		return
	}
}

func (a *api) run(w http.ResponseWriter, req *http.Request) {
	data, err := ioutil.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := sbp.Parse(string(data))
	if err != nil {
		a.fail(w, "run", err)
		return
	}
	err = a.m.Run(req.Context(), p)
	if err != nil {
		a.fail(w, "run", err)
		return
	}
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		return false, ""
	}
	dir := base
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	os.MkdirAll(filepath.Dir(name), 0755)
	f, err := os.Create(name)
	if err != nil {
		a.log.Error("create file", zap.String("name", name), zap.Error(err))
		http.Error(w, err.Error(), 500)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		a.log.Error("write file", zap.String("name", name), zap.Error(err))
		http.Error(w, err.Error(), 500)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, req.URL.Path)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if os.IsNotExist(err) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		a.log.Error("delete file", zap.String("name", name), zap.Error(err))
		http.Error(w, err.Error(), 500)
		return
	}
}
