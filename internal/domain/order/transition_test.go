package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/dinein/internal/domain/table"
	"github.com/xenking/dinein/internal/notify"
)

func TestCanTransition(t *testing.T) {
	all := []Status{
		StatusPending, StatusAccepted, StatusPreparing, StatusReady,
		StatusServed, StatusCompleted, StatusCancelled,
	}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusAccepted}:   true,
		{StatusPending, StatusCancelled}:  true,
		{StatusAccepted, StatusPreparing}: true,
		{StatusAccepted, StatusCancelled}: true,
		{StatusPreparing, StatusReady}:    true,
		{StatusReady, StatusServed}:       true,
		{StatusServed, StatusCompleted}:   true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func occupy(store *memStore, tableID, orderID string) {
	tb := store.data.tables[tableID]
	tb.Status = table.StatusOccupied
	tb.CurrentOrderID = orderID
	store.data.tables[tableID] = tb
}

func TestTransition_Accept(t *testing.T) {
	store := seedStore()
	putOrder(store, "a", "t1", StatusPending, testClock)
	occupy(store, "t1", "a")
	svc, pub := newTestService(t, store)

	o, err := svc.Transition(context.Background(), "a", StatusAccepted)
	require.NoError(t, err)

	assert.Equal(t, StatusAccepted, o.Status)
	require.NotNil(t, o.ConfirmedAt)
	assert.Equal(t, testClock, *o.ConfirmedAt)
	assert.Equal(t, StatusAccepted, store.data.orders["a"].Status)
	assert.Equal(t, table.StatusOccupied, store.data.tables["t1"].Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, notify.OrderStatusChanged, pub.events[0].Kind)
	assert.Equal(t, "ACCEPTED", pub.events[0].Status)
}

func TestTransition_CompleteReleasesTable(t *testing.T) {
	store := seedStore()
	putOrder(store, "a", "t1", StatusServed, testClock)
	occupy(store, "t1", "a")
	svc, _ := newTestService(t, store)

	o, err := svc.Transition(context.Background(), "a", StatusCompleted)
	require.NoError(t, err)

	require.NotNil(t, o.CompletedAt)
	assert.Equal(t, table.StatusAvailable, store.data.tables["t1"].Status)
	assert.Empty(t, store.data.tables["t1"].CurrentOrderID)
}

func TestTransition_CancelKeepsTableOfNewerOrder(t *testing.T) {
	store := seedStore()
	putOrder(store, "a", "t1", StatusPending, testClock)
	putOrder(store, "b", "t1", StatusPending, testClock)
	occupy(store, "t1", "b")
	svc, _ := newTestService(t, store)

	_, err := svc.Transition(context.Background(), "a", StatusCancelled)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, store.data.orders["a"].Status)
	assert.Equal(t, table.StatusOccupied, store.data.tables["t1"].Status)
	assert.Equal(t, "b", store.data.tables["t1"].CurrentOrderID)
}

func TestTransition_Errors(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		stale   bool
		wantErr error
	}{
		{name: "skip ahead", from: StatusPending, to: StatusReady, wantErr: ErrInvalidTransition},
		{name: "from terminal", from: StatusCompleted, to: StatusCancelled, wantErr: ErrInvalidTransition},
		{name: "cancel while preparing", from: StatusPreparing, to: StatusCancelled, wantErr: ErrInvalidTransition},
		{name: "lost race", from: StatusPending, to: StatusAccepted, stale: true, wantErr: ErrStatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seedStore()
			putOrder(store, "a", "t1", tt.from, testClock)
			store.staleWrite = tt.stale
			svc, pub := newTestService(t, store)

			_, err := svc.Transition(context.Background(), "a", tt.to)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.from, store.data.orders["a"].Status)
			assert.Empty(t, pub.events)
		})
	}
}

func TestTransition_TypedError(t *testing.T) {
	store := seedStore()
	putOrder(store, "a", "t1", StatusReady, testClock)
	svc, _ := newTestService(t, store)

	_, err := svc.Transition(context.Background(), "a", StatusPending)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusReady, te.From)
	assert.Equal(t, StatusPending, te.To)
}

func TestTransition_UnknownOrder(t *testing.T) {
	svc, _ := newTestService(t, seedStore())

	_, err := svc.Transition(context.Background(), "missing", StatusAccepted)
	require.ErrorIs(t, err, ErrNotFound)
}
