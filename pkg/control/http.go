package control

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/core-tools/hsu-svcmgr-go/pkg/graph"
	"github.com/core-tools/hsu-svcmgr-go/pkg/restarter"
)

// Handler serves a read-only JSON introspection surface over the Graph
// Engine and the Restarter Core, built the way a gorilla/mux Handler
// wrapping a single status-bearing manager usually looks: one route per
// resource, no mutation. See DESIGN.md for why the mutating side of the
// control surface sits on a separate Unix-socket transport instead.
type Handler struct {
	graph *graph.Graph
	core  *restarter.Core
	r     *mux.Router
}

// NewHandler builds the introspection router: GET /units, GET /graph.
func NewHandler(g *graph.Graph, core *restarter.Core) *Handler {
	h := &Handler{graph: g, core: core, r: mux.NewRouter()}
	h.r.HandleFunc("/units", h.listUnits).Methods("GET")
	h.r.HandleFunc("/graph", h.listVertices).Methods("GET")
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

// UnitInfo is the wire shape of one restarter.Unit.
type UnitInfo struct {
	Path         string `json:"path"`
	Type         string `json:"type"`
	State        string `json:"state"`
	Target       string `json:"target"`
	MainPID      int    `json:"main_pid"`
	SecondaryPID int    `json:"secondary_pid"`
	PIDCount     int    `json:"pid_count"`
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	units := h.core.Units()
	infos := make([]UnitInfo, 0, len(units))
	for _, u := range units {
		infos = append(infos, UnitInfo{
			Path:         u.Path.String(),
			Type:         string(u.Type),
			State:        u.State.String(),
			Target:       u.Target.String(),
			MainPID:      u.MainPID,
			SecondaryPID: u.SecondaryPID,
			PIDCount:     len(u.PIDs),
		})
	}
	writeJSON(w, infos)
}

// VertexInfo is the wire shape of one graph.Vertex.
type VertexInfo struct {
	Path      string `json:"path"`
	Kind      int    `json:"kind"`
	State     string `json:"state"`
	IsEnabled bool   `json:"is_enabled"`
	ToOffline bool   `json:"to_offline"`
	ToDisable bool   `json:"to_disable"`
}

func (h *Handler) listVertices(w http.ResponseWriter, r *http.Request) {
	vertices := h.graph.All()
	infos := make([]VertexInfo, 0, len(vertices))
	for _, v := range vertices {
		infos = append(infos, VertexInfo{
			Path:      v.Path.String(),
			Kind:      int(v.Kind),
			State:     v.State.String(),
			IsEnabled: v.IsEnabled,
			ToOffline: v.ToOffline,
			ToDisable: v.ToDisable,
		})
	}
	writeJSON(w, infos)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
