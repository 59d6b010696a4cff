package admin

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nodalcore/container/internal/controller"
	"github.com/nodalcore/container/internal/registry"
	"github.com/nodalcore/container/internal/svcname"
)

// serviceView is the JSON shape returned for one controller.
type serviceView struct {
	Name               string  `json:"name"`
	State              string  `json:"state"`
	Mode               string  `json:"mode"`
	PendingDeps        int     `json:"pending_dependencies"`
	Dependencies       []string `json:"dependencies"`
	StartFailureReason string  `json:"start_failure,omitempty"`
}

func viewOf(c *controller.Controller) serviceView {
	deps := make([]string, 0, len(c.Dependencies()))
	for _, d := range c.Dependencies() {
		deps = append(deps, d.Name().String())
	}

	v := serviceView{
		Name:         c.Name().String(),
		State:        c.State().String(),
		Mode:         c.Mode().String(),
		PendingDeps:  c.PendingDependencies(),
		Dependencies: deps,
	}
	if err := c.StartFailure(); err != nil {
		v.StartFailureReason = err.Error()
	}
	return v
}

// Handler builds the admin mux backed by reg. logger is used to record
// handler-level errors; a nil logger is treated as a no-op logger.
func Handler(reg *registry.Registry, logger *zerolog.Logger) http.Handler {
	if logger == nil {
		noop := zerolog.Nop()
		logger = &noop
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /services", listServices(reg))
	mux.HandleFunc("GET /services/{name}", getService(reg))
	mux.HandleFunc("PATCH /services/{name}", patchService(reg, logger))
	mux.HandleFunc("GET /healthz", healthz)
	return mux
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func listServices(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := reg.Names()
		views := make([]serviceView, 0, len(names))
		for _, name := range names {
			c, err := reg.GetRequired(name)
			if c == nil {
				continue
			}
			_ = err // a removing-but-present controller is still reported
			views = append(views, viewOf(c))
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func getService(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := svcname.Parse(r.PathValue("name"))
		c, err := reg.GetRequired(name)
		if c == nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(c))
	}
}

// patchService handles PATCH /services/{name}. It reads only the body's
// "mode" field, extracted via gjson, so an unrecognized field in the body is
// simply ignored rather than rejected.
func patchService(reg *registry.Registry, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := svcname.Parse(r.PathValue("name"))
		c, err := reg.GetRequired(name)
		if c == nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		modeField := gjson.GetBytes(body, "mode")
		if !modeField.Exists() {
			writeError(w, http.StatusBadRequest, errMissingMode)
			return
		}

		mode, err := controller.ParseMode(modeField.String())
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		c.SetMode(mode)
		logger.Info().Str("service", name.String()).Str("mode", mode.String()).Msg("admin: mode patched")

		echoed, err := sjson.SetBytes([]byte(`{}`), "mode", mode.String())
		if err != nil {
			echoed = []byte(`{}`)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(echoed)
	}
}

var errMissingMode = &patchError{msg: "admin: patch body missing \"mode\" field"}

type patchError struct{ msg string }

func (e *patchError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
