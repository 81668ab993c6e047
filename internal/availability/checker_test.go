package availability

import (
	"context"
	"testing"
	"time"

	"storagebooking/internal/errs"
	"storagebooking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetUnit(ctx context.Context, id int64) (*models.Unit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Unit), args.Error(1)
}

func (m *mockStore) ListBlockingBookings(ctx context.Context, unitID int64, start, end time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, unitID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

var base = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func booking(id int64, startH, endH int, status models.BookingStatus) *models.Booking {
	return &models.Booking{
		ID:        id,
		UnitID:    1,
		StartTime: base.Add(time.Duration(startH) * time.Hour),
		EndTime:   base.Add(time.Duration(endH) * time.Hour),
		Status:    status,
	}
}

func TestOverlaps(t *testing.T) {
	h := func(n int) time.Time { return base.Add(time.Duration(n) * time.Hour) }

	tests := []struct {
		name           string
		es, ee, rs, re int
		want           bool
	}{
		{"disjoint before", 0, 2, 3, 5, false},
		{"disjoint after", 6, 8, 3, 5, false},
		{"contained", 3, 4, 2, 6, true},
		{"containing", 1, 9, 3, 5, true},
		{"partial left", 1, 4, 3, 5, true},
		{"partial right", 4, 7, 3, 5, true},
		{"touching end to start", 1, 3, 3, 5, true},
		{"touching start to end", 5, 7, 3, 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(h(tt.es), h(tt.ee), h(tt.rs), h(tt.re)))
		})
	}
}

func TestEvaluate(t *testing.T) {
	unit := &models.Unit{ID: 1, IsActive: true, Status: models.UnitAvailable}
	existing := []*models.Booking{
		booking(1, 0, 2, models.BookingConfirmed),
		booking(2, 3, 5, models.BookingPending),
		booking(3, 3, 5, models.BookingCancelled),
		booking(4, 3, 5, models.BookingCompleted),
		booking(5, 10, 12, models.BookingActive),
	}

	res := Evaluate(unit, existing, base.Add(4*time.Hour), base.Add(6*time.Hour), 0)
	assert.False(t, res.Available)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, int64(2), res.Conflicts[0].BookingID)

	res = Evaluate(unit, existing, base.Add(4*time.Hour), base.Add(6*time.Hour), 2)
	assert.True(t, res.Available)
	assert.Empty(t, res.Conflicts)

	res = Evaluate(unit, existing, base.Add(-time.Hour), base.Add(11*time.Hour), 0)
	assert.False(t, res.Available)
	assert.Len(t, res.Conflicts, 3)
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	start, end := base.Add(4*time.Hour), base.Add(6*time.Hour)

	t.Run("Available", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetUnit", ctx, int64(1)).Return(&models.Unit{ID: 1, IsActive: true, Status: models.UnitOccupied}, nil)
		store.On("ListBlockingBookings", ctx, int64(1), start, end).Return([]*models.Booking{}, nil)

		res, err := NewChecker(store, store, nil).CheckAvailability(ctx, 1, start, end)
		require.NoError(t, err)
		assert.True(t, res.Available)
		store.AssertExpectations(t)
	})

	t.Run("Conflict", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetUnit", ctx, int64(1)).Return(&models.Unit{ID: 1, IsActive: true, Status: models.UnitAvailable}, nil)
		store.On("ListBlockingBookings", ctx, int64(1), start, end).
			Return([]*models.Booking{booking(7, 5, 9, models.BookingConfirmed)}, nil)

		res, err := NewChecker(store, store, nil).CheckAvailability(ctx, 1, start, end)
		require.NoError(t, err)
		assert.False(t, res.Available)
		require.Len(t, res.Conflicts, 1)
		assert.Equal(t, Conflict{BookingID: 7, Start: base.Add(5 * time.Hour), End: base.Add(9 * time.Hour)}, res.Conflicts[0])
	})

	t.Run("MaintenanceShortCircuits", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetUnit", ctx, int64(1)).Return(&models.Unit{ID: 1, IsActive: true, Status: models.UnitMaintenance}, nil)

		res, err := NewChecker(store, store, nil).CheckAvailability(ctx, 1, start, end)
		require.NoError(t, err)
		assert.False(t, res.Available)
		assert.Empty(t, res.Conflicts)
		store.AssertNotCalled(t, "ListBlockingBookings", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("InactiveShortCircuits", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetUnit", ctx, int64(1)).Return(&models.Unit{ID: 1, IsActive: false, Status: models.UnitAvailable}, nil)

		res, err := NewChecker(store, store, nil).CheckAvailability(ctx, 1, start, end)
		require.NoError(t, err)
		assert.False(t, res.Available)
		assert.Empty(t, res.Conflicts)
	})

	t.Run("UnitNotFound", func(t *testing.T) {
		store := &mockStore{}
		store.On("GetUnit", ctx, int64(9)).Return(nil, errs.NotFoundf("unit 9 not found"))

		_, err := NewChecker(store, store, nil).CheckAvailability(ctx, 9, start, end)
		assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	})

	t.Run("InvalidInterval", func(t *testing.T) {
		_, err := NewChecker(&mockStore{}, &mockStore{}, nil).CheckAvailability(ctx, 1, end, start)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	})
}
