package entity

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/goliatone/go-entity/identity"
)

type Widget struct {
	Base
	inserts, updates, deletes int
	failSave                  error
}

var widgetX = NewProperty("x", 0)

var WidgetType = Define(func() *Widget { return &Widget{} }, widgetX)

func (w *Widget) Create(_ context.Context, _ any) error {
	return w.Load(func() error { return widgetX.Set(w, 1) })
}

func (w *Widget) Fetch(_ context.Context, params any) error {
	x, ok := params.(int)
	if !ok {
		return errors.New("widget: fetch expects an int")
	}
	return w.Load(func() error { return widgetX.Set(w, x) })
}

func (w *Widget) Insert(context.Context) error {
	w.inserts++
	return w.failSave
}

func (w *Widget) Update(context.Context) error {
	w.updates++
	return w.failSave
}

func (w *Widget) Delete(context.Context) error {
	w.deletes++
	return w.failSave
}

type Person struct{ Base }

type Age struct{ Base }

var (
	personFirstName = NewProperty("firstName", "")
	personLastName  = NewProperty("lastName", "")
	personTags      = NewProperty[[]string]("tags", nil)
	personAge       = NewChild[*Age]("age")
	ageValue        = NewProperty("value", 0)

	AgeType    = Define(func() *Age { return &Age{} }, ageValue)
	PersonType = Define(func() *Person { return &Person{} }, personFirstName, personLastName, personTags, personAge)
)

type Shape interface {
	Entity
	Area() float64
}

type Circle struct{ Base }

type Square struct{ Base }

type Drawing struct{ Base }

var (
	circleRadius = NewProperty("radius", 0.0)
	squareSide   = NewProperty("side", 0.0)
	drawingTitle = NewProperty("title", "untitled")
	drawingShape = NewChild[Shape]("shape")
	drawingSize  = NewProperty[int64]("size", 0)

	CircleType  = Define(func() *Circle { return &Circle{} }, circleRadius)
	SquareType  = Define(func() *Square { return &Square{} }, squareSide)
	DrawingType = Define(func() *Drawing { return &Drawing{} }, drawingTitle, drawingShape, drawingSize)
)

func (c *Circle) Area() float64 {
	r := circleRadius.Get(c)
	return math.Pi * r * r
}

func (s *Square) Area() float64 {
	side := squareSide.Get(s)
	return side * side
}

func testScope() identity.Namespace {
	return identity.Namespace{
		"Demo": identity.Namespace{
			"Widget": WidgetType,
			"Person": PersonType,
			"Age":    AgeType,
		},
		"Shapes": identity.Namespace{
			"Circle":  CircleType,
			"Square":  SquareType,
			"Drawing": DrawingType,
		},
	}
}

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := NewRuntime(testScope(), opts...)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	return rt
}

func mustNew[E Entity](t *testing.T, rt *Runtime, typ *Type) E {
	t.Helper()
	e, err := NewAs[E](rt, typ)
	if err != nil {
		t.Fatalf("new %s: %v", typ, err)
	}
	return e
}

type operationRecorder struct {
	events []OperationEvent
}

func (r *operationRecorder) LogOperation(event OperationEvent) {
	r.events = append(r.events, event)
}

func (r *operationRecorder) operations() []string {
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Operation)
	}
	return out
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to resolve caller for fixture %q", name)
	}
	path := filepath.Join(filepath.Dir(file), "testdata", name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %q: %v", path, err)
	}
	return raw
}

func loadJSONFixture[T any](t *testing.T, name string) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(readFixture(t, name), &out); err != nil {
		t.Fatalf("failed to unmarshal fixture %q: %v", name, err)
	}
	return out
}
