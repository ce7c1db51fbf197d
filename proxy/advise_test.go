package proxy

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/com-runtime/errors"
	"github.com/wippyai/com-runtime/wire"
)

type renameListener struct {
	names []string
}

func (l *renameListener) Renamed(name string) {
	l.names = append(l.names, name)
}

func TestAdviseDeliversEvents(t *testing.T) {
	f := newFixture(t)
	obj := f.document("report")
	cp := obj.ConnectionPoint(iidEvents)
	doc := f.wrap(t, obj, "IDocument")
	defer doc.Dispose()

	l := &renameListener{}
	sub, err := doc.Advise(context.Background(), "DDocumentEvents", l)
	require.NoError(t, err)
	assert.Equal(t, 1, cp.Sinks())
	assert.Equal(t, 1, f.env.Events.Len())
	assert.Equal(t, 1, obj.Refs(), "container reference is released after advising")

	name, err := wire.NewBSTR("draft")
	require.NoError(t, err)
	require.NoError(t, cp.Fire(1, name))
	assert.Equal(t, []string{"draft"}, l.names)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, cp.Sinks())
	assert.Equal(t, 0, f.env.Events.Len())
	assert.Equal(t, 1, cp.Refs(), "only the container's own reference remains")
	assert.Empty(t, f.world.Violations())
}

func TestAdviseUnknownEventID(t *testing.T) {
	f := newFixture(t)
	obj := f.document("report")
	cp := obj.ConnectionPoint(iidEvents)
	doc := f.wrap(t, obj, "IDocument")
	defer doc.Dispose()

	l := &renameListener{}
	sub, err := doc.Advise(context.Background(), "DDocumentEvents", l)
	require.NoError(t, err)
	defer sub.Close()

	err = cp.Fire(42)
	assert.ErrorIs(t, err, errors.ErrUnknownMember)
	assert.Equal(t, errors.StatusMemberNotFound, errors.StatusOf(err))
	assert.Empty(t, l.names)
}

func TestAdviseWithoutContainer(t *testing.T) {
	f := newFixture(t)
	doc := f.wrap(t, f.document("report"), "IDocument")
	defer doc.Dispose()

	_, err := doc.Advise(context.Background(), "DDocumentEvents", &renameListener{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrForeignCall)
	assert.Equal(t, errors.StatusNoInterface, errors.StatusOf(err))
	assert.Equal(t, 0, f.env.Events.Len())
}

func TestAdviseUnsupportedEvents(t *testing.T) {
	f := newFixture(t)
	obj := f.document("report")
	obj.ConnectionPoint(iidPage)
	doc := f.wrap(t, obj, "IDocument")
	defer doc.Dispose()

	_, err := doc.Advise(context.Background(), "DDocumentEvents", &renameListener{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrForeignCall)
	assert.Equal(t, 0, f.env.Events.Len())
	assert.Equal(t, 1, obj.Refs())
}

func TestAdviseDroppedSubscriptionDisconnects(t *testing.T) {
	f := newFixture(t)
	obj := f.document("report")
	cp := obj.ConnectionPoint(iidEvents)
	doc := f.wrap(t, obj, "IDocument")
	defer doc.Dispose()

	l := &renameListener{}
	func() {
		_, err := doc.Advise(context.Background(), "DDocumentEvents", l)
		require.NoError(t, err)
	}()
	require.Equal(t, 2, cp.Refs())

	require.Eventually(t, func() bool {
		runtime.GC()
		return cp.Sinks() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// wait for the rest of the release to finish
	_, err := f.thread.Submit(context.Background(), func() (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, cp.Refs())
	assert.Equal(t, 0, f.env.Events.Len())

	late, err := wire.NewBSTR("late")
	require.NoError(t, err)
	require.NoError(t, cp.Fire(1, late))
	assert.Empty(t, l.names)
	assert.Empty(t, f.world.Violations())
}

func TestAdviseCloseAfterApartmentStopped(t *testing.T) {
	f := newFixture(t)
	obj := f.document("report")
	cp := obj.ConnectionPoint(iidEvents)
	doc := f.wrap(t, obj, "IDocument")

	sub, err := doc.Advise(context.Background(), "DDocumentEvents", &renameListener{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = f.thread.Close(ctx)

	assert.Equal(t, 0, cp.Sinks(), "stopping the apartment unadvises")
	assert.Equal(t, 1, cp.Refs())
	assert.Equal(t, 0, f.env.Events.Len())
	require.NoError(t, sub.Close())
	require.NoError(t, doc.Dispose())
	assert.Empty(t, f.world.Violations())
}
