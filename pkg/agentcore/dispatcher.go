package agentcore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"agentcore/pkg/config"
	"agentcore/pkg/logx"
)

const logDomain = "dispatch"

// slot lazily constructs and memoizes one delegate. A failed construction is not cached.
type slot struct {
	plane    Plane
	service  string
	docs     string
	factory  Factory
	mu       sync.Mutex
	delegate Delegate
}

// get returns the delegate, constructing it if needed. created reports whether this
// call performed the construction.
func (s *slot) get(region string) (d Delegate, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.delegate != nil {
		return s.delegate, false, nil
	}
	if s.factory == nil {
		return nil, false, fmt.Errorf("%s plane: %w", s.plane, ErrNoFactory)
	}

	d, err = s.factory(region)
	if err != nil {
		return nil, false, fmt.Errorf("create %s plane client (%s): %w", s.plane, s.service, err)
	}
	if d == nil {
		return nil, false, fmt.Errorf("create %s plane client (%s): factory returned nil", s.plane, s.service)
	}
	if documented, ok := d.(Documented); ok && documented.Documentation() != "" {
		s.docs = documented.Documentation()
	}
	s.delegate = d
	return d, true, nil
}

// documentation returns the plane's documentation URL.
func (s *slot) documentation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs
}

// Dispatcher routes operations to the control plane first and the data plane second.
// It is safe for concurrent use; each delegate is constructed at most once.
type Dispatcher struct {
	region      string
	control     *slot
	data        *slot
	middlewares []Middleware
	observer    Observer
	logger      *logx.Logger
}

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	region         string
	controlFactory Factory
	dataFactory    Factory
	controlService string
	dataService    string
	middlewares    []Middleware
	observer       Observer
	logger         *logx.Logger
}

// WithRegion sets the region explicitly, taking precedence over the ambient session default.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithControlPlane sets the primary delegate factory.
func WithControlPlane(f Factory) Option {
	return func(o *options) { o.controlFactory = f }
}

// WithDataPlane sets the secondary delegate factory.
func WithDataPlane(f Factory) Option {
	return func(o *options) { o.dataFactory = f }
}

// WithServiceNames overrides the service identities reported in errors.
func WithServiceNames(control, data string) Option {
	return func(o *options) {
		o.controlService = control
		o.dataService = data
	}
}

// WithMiddleware appends middlewares applied to every resolved operation.
func WithMiddleware(mws ...Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithObserver installs a resolution observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(logger *logx.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a Dispatcher. No delegate is constructed and no network access happens here.
// The region is the explicit WithRegion value, else config.SessionRegion, else config.DefaultRegion.
func New(opts ...Option) *Dispatcher {
	o := options{
		controlService: config.ControlPlaneService,
		dataService:    config.DataPlaneService,
	}
	for _, opt := range opts {
		opt(&o)
	}

	region := o.region
	if region == "" {
		region = config.SessionRegion()
	}
	if region == "" {
		region = config.DefaultRegion
	}

	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.logger == nil {
		o.logger = logx.NewLogger("agentcore")
	}

	d := &Dispatcher{
		region: region,
		control: &slot{
			plane:   ControlPlane,
			service: o.controlService,
			docs:    config.ControlPlaneDocs,
			factory: o.controlFactory,
		},
		data: &slot{
			plane:   DataPlane,
			service: o.dataService,
			docs:    config.DataPlaneDocs,
			factory: o.dataFactory,
		},
		middlewares: o.middlewares,
		observer:    o.observer,
		logger:      o.logger,
	}

	d.logger.Info("Initialized unified client for region: %s", region)
	return d
}

// Region returns the region fixed at construction.
func (d *Dispatcher) Region() string {
	return d.region
}

// ControlPlane returns the primary delegate, constructing it on first use.
func (d *Dispatcher) ControlPlane() (Delegate, error) {
	return d.delegate(d.control)
}

// DataPlane returns the secondary delegate, constructing it on first use.
func (d *Dispatcher) DataPlane() (Delegate, error) {
	return d.delegate(d.data)
}

func (d *Dispatcher) delegate(s *slot) (Delegate, error) {
	dl, created, err := s.get(d.region)
	if err != nil {
		d.observer.ObserveDelegateInitFailure(s.plane.String())
		return nil, err
	}
	if created {
		d.logger.DebugDomain(logDomain, "Created %s plane client for region: %s", s.plane, d.region)
	}
	return dl, nil
}

func (d *Dispatcher) slots() [2]*slot {
	return [2]*slot{d.control, d.data}
}

// Resolve finds the operation on the control plane, then the data plane. A delegate that
// cannot be constructed is logged and treated as not exposing the operation.
func (d *Dispatcher) Resolve(name string) (Operation, error) {
	var skipped []*PlaneError

	for _, s := range d.slots() {
		dl, err := d.delegate(s)
		if err != nil {
			d.logger.Warn("Skipping %s plane for '%s': %v", s.plane, name, err)
			skipped = append(skipped, &PlaneError{Plane: s.plane, Service: s.service, Err: err})
			continue
		}

		op, ok := dl.Lookup(name)
		if !ok {
			continue
		}

		d.logger.DebugDomain(logDomain, "Routing '%s' to %s plane", name, s.plane)
		d.observer.ObserveResolution(name, s.plane.String())
		route := Route{Operation: name, Plane: s.plane, Service: dl.Service()}
		return Chain(route, op, d.middlewares...), nil
	}

	d.observer.ObserveResolution(name, "none")
	return nil, &ResolutionError{
		Operation:      name,
		ControlService: d.control.service,
		DataService:    d.data.service,
		ControlDocs:    d.control.documentation(),
		DataDocs:       d.data.documentation(),
		Skipped:        skipped,
	}
}

// Call resolves name and invokes it with args. Errors from the operation itself are
// returned unchanged.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	op, err := d.Resolve(name)
	if err != nil {
		return nil, err
	}
	return op(ctx, args)
}

// ClientFor returns the delegate that serves name. Unlike Resolve, delegate construction
// failures are returned as-is.
func (d *Dispatcher) ClientFor(name string) (Delegate, error) {
	_, dl, err := d.locate(name)
	return dl, err
}

// PlaneFor returns which plane serves name, with the same error semantics as ClientFor.
func (d *Dispatcher) PlaneFor(name string) (Plane, error) {
	plane, _, err := d.locate(name)
	return plane, err
}

func (d *Dispatcher) locate(name string) (Plane, Delegate, error) {
	for _, s := range d.slots() {
		dl, err := d.delegate(s)
		if err != nil {
			return 0, nil, err
		}
		if _, ok := dl.Lookup(name); ok {
			return s.plane, dl, nil
		}
	}
	return 0, nil, &NotFoundError{Operation: name}
}

// Operations lists the operations a plane exposes, sorted. The delegate must implement Lister.
func (d *Dispatcher) Operations(plane Plane) ([]string, error) {
	s := d.control
	if plane == DataPlane {
		s = d.data
	}

	dl, err := d.delegate(s)
	if err != nil {
		return nil, err
	}
	lister, ok := dl.(Lister)
	if !ok {
		return nil, fmt.Errorf("%s plane client (%s) cannot enumerate operations", plane, dl.Service())
	}

	names := append([]string(nil), lister.Operations()...)
	sort.Strings(names)
	return names, nil
}
