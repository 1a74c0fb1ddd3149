//go:generate mockgen -source=dispatcher.go -destination=mocks/mock_dispatcher.go -package=mocks

package coordinator

import "context"

// Dispatcher routes work items to child nodes. outputs has one entry per
// child output of the coordinator; a nil entry means nothing is routed to
// that output. Results never come back through Dispatch: children report on
// the blackboard.
//
// Dispatch is called while the coordinator holds its lock and must not call
// back into the same coordinator.
type Dispatcher interface {
	Dispatch(ctx context.Context, outputs []*WorkItem) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, outputs []*WorkItem) error

func (f DispatcherFunc) Dispatch(ctx context.Context, outputs []*WorkItem) error {
	return f(ctx, outputs)
}

// Fill is the colour of a status indicator.
type Fill string

const (
	FillGrey   Fill = "grey"
	FillBlue   Fill = "blue"
	FillGreen  Fill = "green"
	FillRed    Fill = "red"
	FillYellow Fill = "yellow"
)

// Shape is the outline of a status indicator.
type Shape string

const (
	ShapeDot  Shape = "dot"
	ShapeRing Shape = "ring"
)

// Indicator is a best-effort status update for a host UI.
type Indicator struct {
	Coordinator string
	Fill        Fill
	Shape       Shape
	Text        string
}

// StatusSink receives indicators at each meaningful transition. Report must
// not block.
type StatusSink interface {
	Report(ind Indicator)
}

type nopSink struct{}

func (nopSink) Report(Indicator) {}
