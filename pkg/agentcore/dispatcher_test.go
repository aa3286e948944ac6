package agentcore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/pkg/config"
	"agentcore/pkg/logx"
)

// fakeDelegate exposes a fixed set of operations.
type fakeDelegate struct {
	service string
	ops     map[string]Operation
}

func (f *fakeDelegate) Service() string { return f.service }

func (f *fakeDelegate) Lookup(name string) (Operation, bool) {
	op, ok := f.ops[name]
	return op, ok
}

func (f *fakeDelegate) Operations() []string {
	names := make([]string, 0, len(f.ops))
	for name := range f.ops {
		names = append(names, name)
	}
	return names
}

func returning(result map[string]any) Operation {
	return func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return result, nil
	}
}

// countingFactory returns the same delegate on every call and counts invocations.
type countingFactory struct {
	delegate Delegate
	err      error
	calls    atomic.Int32
	regions  []string
	mu       sync.Mutex
}

func (c *countingFactory) build(region string) (Delegate, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.regions = append(c.regions, region)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.delegate, nil
}

func quietLogger() *logx.Logger {
	return logx.NewLoggerWithWriter("test", &bytes.Buffer{})
}

func newTestDispatcher(control, data *countingFactory, opts ...Option) *Dispatcher {
	base := []Option{
		WithRegion("us-east-1"),
		WithControlPlane(control.build),
		WithDataPlane(data.build),
		WithLogger(quietLogger()),
	}
	return New(append(base, opts...)...)
}

func widgetPlanes() (*countingFactory, *countingFactory) {
	control := &countingFactory{delegate: &fakeDelegate{
		service: config.ControlPlaneService,
		ops:     map[string]Operation{"create_widget": returning(map[string]any{"id": "w-1"})},
	}}
	data := &countingFactory{delegate: &fakeDelegate{
		service: config.DataPlaneService,
		ops:     map[string]Operation{"fetch_token": returning(map[string]any{"token": "abc"})},
	}}
	return control, data
}

func isolateAmbientRegion(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing"))
}

func TestNewRegionResolution(t *testing.T) {
	t.Run("explicit argument wins", func(t *testing.T) {
		isolateAmbientRegion(t)
		t.Setenv("AWS_REGION", "eu-west-1")
		d := New(WithRegion("us-east-1"), WithLogger(quietLogger()))
		assert.Equal(t, "us-east-1", d.Region())
	})

	t.Run("ambient session default", func(t *testing.T) {
		isolateAmbientRegion(t)
		t.Setenv("AWS_REGION", "eu-west-1")
		d := New(WithLogger(quietLogger()))
		assert.Equal(t, "eu-west-1", d.Region())
	})

	t.Run("fixed fallback", func(t *testing.T) {
		isolateAmbientRegion(t)
		d := New(WithLogger(quietLogger()))
		assert.Equal(t, config.DefaultRegion, d.Region())
		assert.Equal(t, "us-west-2", d.Region())
	})
}

func TestNewDoesNotConstructDelegates(t *testing.T) {
	control, data := widgetPlanes()
	var buf bytes.Buffer

	d := newTestDispatcher(control, data, WithLogger(logx.NewLoggerWithWriter("test", &buf)))

	assert.Zero(t, control.calls.Load())
	assert.Zero(t, data.calls.Load())
	assert.Nil(t, d.control.delegate)
	assert.Nil(t, d.data.delegate)
	assert.Contains(t, buf.String(), "us-east-1")
}

func TestDelegateAccessorsMemoize(t *testing.T) {
	control, data := widgetPlanes()
	d := newTestDispatcher(control, data)

	first, err := d.ControlPlane()
	require.NoError(t, err)
	second, err := d.ControlPlane()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), control.calls.Load())
	assert.Equal(t, []string{"us-east-1"}, control.regions)

	dataFirst, err := d.DataPlane()
	require.NoError(t, err)
	dataSecond, err := d.DataPlane()
	require.NoError(t, err)
	assert.Same(t, dataFirst, dataSecond)
	assert.Equal(t, int32(1), data.calls.Load())
}

func TestDelegateConstructionFailureNotCached(t *testing.T) {
	control, data := widgetPlanes()
	control.err = errors.New("no credentials")
	d := newTestDispatcher(control, data)

	_, err := d.ControlPlane()
	require.Error(t, err)
	assert.ErrorContains(t, err, "no credentials")
	assert.Nil(t, d.control.delegate)

	control.err = nil
	dl, err := d.ControlPlane()
	require.NoError(t, err)
	assert.Same(t, control.delegate, dl)
	assert.Equal(t, int32(2), control.calls.Load())
}

func TestMissingFactory(t *testing.T) {
	d := New(WithRegion("us-east-1"), WithLogger(quietLogger()))

	_, err := d.ControlPlane()
	assert.ErrorIs(t, err, ErrNoFactory)
}

func TestResolveControlPlaneOnly(t *testing.T) {
	control, data := widgetPlanes()
	d := newTestDispatcher(control, data)

	for i := 0; i < 3; i++ {
		op, err := d.Resolve("create_widget")
		require.NoError(t, err)
		out, err := op(context.Background(), map[string]any{"name": "x"})
		require.NoError(t, err)
		assert.Equal(t, "w-1", out["id"])
	}

	assert.Equal(t, int32(1), control.calls.Load())
	assert.Zero(t, data.calls.Load(), "data plane must never be constructed")
	assert.Nil(t, d.data.delegate)
}

func TestResolveDataPlaneChecksControlFirst(t *testing.T) {
	control, data := widgetPlanes()
	d := newTestDispatcher(control, data)

	op, err := d.Resolve("fetch_token")
	require.NoError(t, err)
	out, err := op(context.Background(), map[string]any{"widgetId": "w-1"})
	require.NoError(t, err)
	assert.Equal(t, "abc", out["token"])

	_, err = d.Resolve("fetch_token")
	require.NoError(t, err)

	assert.Equal(t, int32(1), control.calls.Load(), "control plane constructed even though it lacks the operation")
	assert.Equal(t, int32(1), data.calls.Load())
}

func TestResolvePrefersControlPlane(t *testing.T) {
	control, data := widgetPlanes()
	control.delegate.(*fakeDelegate).ops["shared"] = returning(map[string]any{"plane": "control"})
	data.delegate.(*fakeDelegate).ops["shared"] = returning(map[string]any{"plane": "data"})
	d := newTestDispatcher(control, data)

	out, err := d.Call(context.Background(), "shared", nil)
	require.NoError(t, err)
	assert.Equal(t, "control", out["plane"])
	assert.Zero(t, data.calls.Load())
}

func TestResolveNotFound(t *testing.T) {
	control, data := widgetPlanes()
	d := newTestDispatcher(control, data)

	_, err := d.Resolve("Z")
	require.Error(t, err)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.True(t, IsResolutionError(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "Z", resErr.Operation)
	assert.Empty(t, resErr.Skipped)

	msg := err.Error()
	assert.Contains(t, msg, "'Z'")
	assert.Contains(t, strings.ToLower(msg), "not found")
	assert.Contains(t, msg, config.ControlPlaneService)
	assert.Contains(t, msg, config.DataPlaneService)
	assert.Contains(t, msg, config.ControlPlaneDocs)
	assert.Contains(t, msg, config.DataPlaneDocs)
}

func TestResolveSwallowsConstructionFailure(t *testing.T) {
	control, data := widgetPlanes()
	outage := errors.New("expired token")
	control.err = outage
	d := newTestDispatcher(control, data)

	// A down control plane does not block data plane operations.
	out, err := d.Call(context.Background(), "fetch_token", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", out["token"])

	// Absent everywhere: the outage is reported as not found, but kept for inspection.
	_, err = d.Resolve("create_widget")
	require.Error(t, err)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Len(t, resErr.Skipped, 1)
	assert.Equal(t, ControlPlane, resErr.Skipped[0].Plane)
	assert.ErrorIs(t, err, outage)
	assert.Contains(t, err.Error(), "expired token")

	// Each resolution retried construction.
	assert.Equal(t, int32(2), control.calls.Load())
}

func TestCallPropagatesOperationErrors(t *testing.T) {
	control, data := widgetPlanes()
	denied := errors.New("AccessDeniedException")
	control.delegate.(*fakeDelegate).ops["delete_widget"] = func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return nil, denied
	}
	d := newTestDispatcher(control, data)

	_, err := d.Call(context.Background(), "delete_widget", nil)
	assert.Same(t, denied, err)
}

func TestClientFor(t *testing.T) {
	control, data := widgetPlanes()
	d := newTestDispatcher(control, data)

	dl, err := d.ClientFor("create_widget")
	require.NoError(t, err)
	stored, _ := d.ControlPlane()
	assert.Same(t, stored, dl)

	dl, err = d.ClientFor("fetch_token")
	require.NoError(t, err)
	stored, _ = d.DataPlane()
	assert.Same(t, stored, dl)

	plane, err := d.PlaneFor("fetch_token")
	require.NoError(t, err)
	assert.Equal(t, DataPlane, plane)

	_, err = d.ClientFor("delete_widget")
	require.Error(t, err)
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.False(t, IsResolutionError(err))
	assert.Contains(t, err.Error(), "delete_widget")
}

func TestClientForPropagatesConstructionFailure(t *testing.T) {
	control, data := widgetPlanes()
	outage := errors.New("no credentials")
	control.err = outage
	d := newTestDispatcher(control, data)

	_, err := d.ClientFor("fetch_token")
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)
	assert.False(t, IsNotFound(err))
	assert.Zero(t, data.calls.Load())
}

func TestResolveSwallowsDataPlaneConstructionFailure(t *testing.T) {
	control, data := widgetPlanes()
	data.err = errors.New("data plane endpoint unreachable")
	d := newTestDispatcher(control, data)

	// Served by the control plane, so the data plane is never built.
	out, err := d.Call(context.Background(), "create_widget", nil)
	require.NoError(t, err)
	assert.Equal(t, "w-1", out["id"])
	assert.Zero(t, data.calls.Load())

	// A data-plane-only operation fails like an unknown one, with the outage attached.
	_, err = d.Resolve("fetch_token")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Len(t, resErr.Skipped, 1)
	assert.Equal(t, DataPlane, resErr.Skipped[0].Plane)
	assert.ErrorIs(t, err, data.err)
	assert.Equal(t, int32(1), data.calls.Load())
}

func TestResolveBothPlanesDown(t *testing.T) {
	control, data := widgetPlanes()
	control.err = errors.New("control credentials expired")
	data.err = errors.New("data credentials expired")
	d := newTestDispatcher(control, data)

	_, err := d.Resolve("fetch_token")
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
	assert.False(t, IsNotFound(err))

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Len(t, resErr.Skipped, 2)
	assert.Equal(t, ControlPlane, resErr.Skipped[0].Plane)
	assert.Equal(t, DataPlane, resErr.Skipped[1].Plane)
	assert.ErrorIs(t, err, control.err)
	assert.ErrorIs(t, err, data.err)
	assert.Contains(t, err.Error(), "control credentials expired")
	assert.Contains(t, err.Error(), "data credentials expired")
}

func TestClientForPropagatesDataPlaneFailure(t *testing.T) {
	control, data := widgetPlanes()
	outage := errors.New("data plane credentials missing")
	data.err = outage
	d := newTestDispatcher(control, data)

	_, err := d.ClientFor("fetch_token")
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)
	assert.False(t, IsNotFound(err))
	assert.Equal(t, int32(1), control.calls.Load())
	assert.Equal(t, int32(1), data.calls.Load())

	// Operations found on the control plane never touch the broken data plane.
	dl, err := d.ClientFor("create_widget")
	require.NoError(t, err)
	assert.Equal(t, config.ControlPlaneService, dl.Service())
	assert.Equal(t, int32(1), data.calls.Load())
}

func TestDelegateConstructionIsLogged(t *testing.T) {
	wasEnabled := logx.IsDebugEnabled()
	logx.SetDebug(true)
	logx.SetDebugDomains(nil)
	t.Cleanup(func() { logx.SetDebug(wasEnabled) })

	var buf bytes.Buffer
	control, data := widgetPlanes()
	d := newTestDispatcher(control, data, WithLogger(logx.NewLoggerWithWriter("test", &buf)))

	_, err := d.ControlPlane()
	require.NoError(t, err)
	_, err = d.ControlPlane()
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(buf.String(), "Created control plane client for region: us-east-1"))
	assert.NotContains(t, buf.String(), "Created data plane client")
}

// documentedDelegate reports its own documentation URL.
type documentedDelegate struct {
	fakeDelegate
	docs string
}

func (d *documentedDelegate) Documentation() string { return d.docs }

func TestResolutionErrorUsesDelegateDocumentation(t *testing.T) {
	control, data := widgetPlanes()
	control.delegate = &documentedDelegate{
		fakeDelegate: fakeDelegate{service: config.ControlPlaneService, ops: map[string]Operation{}},
		docs:         "https://docs.example.com/control",
	}
	d := newTestDispatcher(control, data)

	_, err := d.Resolve("launch_rocket")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "https://docs.example.com/control", resErr.ControlDocs)
	assert.Equal(t, config.DataPlaneDocs, resErr.DataDocs)
}

func TestConcurrentFirstAccessConstructsOnce(t *testing.T) {
	control, data := widgetPlanes()
	d := newTestDispatcher(control, data)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Call(context.Background(), "fetch_token", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), control.calls.Load())
	assert.Equal(t, int32(1), data.calls.Load())
}

func TestMiddlewareAndObserver(t *testing.T) {
	control, data := widgetPlanes()
	obs := &recordingObserver{}

	var routes []Route
	var order []string
	tag := func(label string) Middleware {
		return func(route Route, next Operation) Operation {
			return func(ctx context.Context, args map[string]any) (map[string]any, error) {
				order = append(order, label)
				routes = append(routes, route)
				return next(ctx, args)
			}
		}
	}

	d := newTestDispatcher(control, data, WithMiddleware(tag("outer"), tag("inner")), WithObserver(obs))

	out, err := d.Call(context.Background(), "fetch_token", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", out["token"])
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, Route{Operation: "fetch_token", Plane: DataPlane, Service: config.DataPlaneService}, routes[0])

	_, _ = d.Resolve("nope")
	assert.Equal(t, []string{"fetch_token:data", "nope:none"}, obs.resolutions)
}

func TestOperations(t *testing.T) {
	control, data := widgetPlanes()
	d := newTestDispatcher(control, data)

	names, err := d.Operations(DataPlane)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch_token"}, names)
}

func TestEndToEndScenario(t *testing.T) {
	control, data := widgetPlanes()
	d := newTestDispatcher(control, data)
	ctx := context.Background()

	assert.Equal(t, "us-east-1", d.Region())

	out, err := d.Call(ctx, "create_widget", map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "w-1"}, out)

	out, err = d.Call(ctx, "fetch_token", map[string]any{"widgetId": "w-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"token": "abc"}, out)

	_, err = d.Call(ctx, "delete_widget", nil)
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
	assert.Contains(t, err.Error(), "delete_widget")
}

type recordingObserver struct {
	mu          sync.Mutex
	resolutions []string
	failures    []string
}

func (r *recordingObserver) ObserveResolution(operation, plane string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolutions = append(r.resolutions, operation+":"+plane)
}

func (r *recordingObserver) ObserveDelegateInitFailure(plane string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, plane)
}
