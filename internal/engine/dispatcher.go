package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// ProcedureFactory builds a procedure bound to the shared collaborators
type ProcedureFactory func(base Base) Procedure

// defaultFactories maps every shipping protocol name to its constructor
func defaultFactories() map[string]ProcedureFactory {
	return map[string]ProcedureFactory{
		ProtocolRouter:      func(b Base) Procedure { return NewRouterProcedure(b) },
		ProtocolRouterDual:  func(b Base) Procedure { return NewRouterDualProcedure(b) },
		ProtocolRouterDsa:   func(b Base) Procedure { return NewRouterDsaProcedure(b) },
		ProtocolFlexEdge:    func(b Base) Procedure { return NewFlexEdgeProcedure(b) },
		ProtocolSgGateway:   func(b Base) Procedure { return NewSgGatewayProcedure(b) },
		ProtocolEdgeGateway: func(b Base) Procedure { return NewEdgeGatewayProcedure(b) },
		ProtocolNone:        func(b Base) Procedure { return NewNoneProcedure(b) },
	}
}

// routeEntry is one compiled route in the dispatch table
type routeEntry struct {
	method     string
	segments   []string
	name       string
	deviceType *models.DeviceType
	procedure  Procedure
}

// FirmwareDownloadRequest is a structurally valid parsed download URL
type FirmwareDownloadRequest struct {
	DeviceHash string
	Secret     string
	Slug       string
	FileID     uuid.UUID
	FileName   string
}

// Dispatcher owns the protocol-to-procedure mapping and the route table
// built from every enabled device type. The table is a read-through cache:
// built lazily once, reused for every request, and rebuilt only after an
// explicit Invalidate.
type Dispatcher struct {
	store     Store
	base      Base
	factories map[string]ProcedureFactory

	mu     sync.RWMutex
	routes []routeEntry
	built  bool
}

// NewDispatcher creates a dispatcher over the shared collaborators
func NewDispatcher(store Store, base Base) *Dispatcher {
	return &Dispatcher{
		store:     store,
		base:      base,
		factories: defaultFactories(),
	}
}

// ProcedureFor returns the procedure for a device type's protocol. Unknown
// or absent protocol names fall back to the null procedure, never an error.
func (d *Dispatcher) ProcedureFor(dt *models.DeviceType) Procedure {
	factory, ok := d.factories[dt.Protocol]
	if !ok {
		factory = d.factories[ProtocolNone]
	}
	return factory(d.base)
}

// Invalidate drops the route table so the next request rebuilds it. Called
// after device type administration changes.
func (d *Dispatcher) Invalidate() {
	d.mu.Lock()
	d.routes = nil
	d.built = false
	d.mu.Unlock()
}

// table returns the compiled route table, building it on first use
func (d *Dispatcher) table(ctx context.Context) ([]routeEntry, error) {
	d.mu.RLock()
	if d.built {
		routes := d.routes
		d.mu.RUnlock()
		return routes, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.built {
		return d.routes, nil
	}

	deviceTypes, _, err := d.store.ListDeviceTypes(ctx, true, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list device types: %w", err)
	}

	var routes []routeEntry
	for _, dt := range deviceTypes {
		proc := d.ProcedureFor(dt)
		for _, route := range proc.Routes(dt) {
			pattern := "/" + strings.Trim(dt.RoutePrefix, "/") + route.Pattern
			routes = append(routes, routeEntry{
				method:     route.Method,
				segments:   splitPath(pattern),
				name:       route.Name,
				deviceType: dt,
				procedure:  proc,
			})
		}
	}

	d.routes = routes
	d.built = true
	return routes, nil
}

// splitPath breaks a path into its segments
func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// matchSegments matches request segments against a pattern, capturing
// {param} placeholders.
func matchSegments(pattern, actual []string) (map[string]string, bool) {
	if len(pattern) != len(actual) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if actual[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:len(seg)-1]] = actual[i]
			continue
		}
		if seg != actual[i] {
			return nil, false
		}
	}
	return params, true
}

// Match resolves a request to the owning device type's procedure. A miss is
// a normal outcome, reported with found=false, never an error.
func (d *Dispatcher) Match(ctx context.Context, method, path string) (*models.DeviceType, Procedure, map[string]string, bool) {
	routes, err := d.table(ctx)
	if err != nil {
		return nil, nil, nil, false
	}

	actual := splitPath(path)
	for i := range routes {
		entry := &routes[i]
		if entry.method != method {
			continue
		}
		if params, ok := matchSegments(entry.segments, actual); ok {
			return entry.deviceType, entry.procedure, params, true
		}
	}
	return nil, nil, nil, false
}

// ServeHTTP dispatches a device check-in request
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dt, proc, params, ok := d.Match(r.Context(), r.Method, r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	proc.Handle(w, r, dt, params)
}

// ParseFirmwareDownloadPath validates a download URL structurally: the hash
// is exactly 14 hex characters and the file id a UUID. Malformed paths
// report false, which callers answer as not found.
func ParseFirmwareDownloadPath(path string) (*FirmwareDownloadRequest, bool) {
	segments := splitPath(path)
	if len(segments) < 5 || len(segments) > 6 || segments[0] != "df" {
		return nil, false
	}

	hash := segments[1]
	if len(hash) != 14 || !isHex(hash) {
		return nil, false
	}

	fileID, err := uuid.Parse(segments[4])
	if err != nil {
		return nil, false
	}

	req := &FirmwareDownloadRequest{
		DeviceHash: hash,
		Secret:     segments[2],
		Slug:       segments[3],
		FileID:     fileID,
	}
	if req.Secret == "" || req.Slug == "" {
		return nil, false
	}
	if len(segments) == 6 {
		req.FileName = segments[5]
	}
	return req, true
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
