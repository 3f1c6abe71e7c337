package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/level-portal-api/internal/dto"
	"github.com/noah-isme/level-portal-api/internal/models"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
)

func newLevelRequestFixture(level int) (*LevelRequestService, *mockLevelRequestRepo, *mockStudentRepo, *mockCacheRepo) {
	students := newMockStudentRepo(&models.Student{ID: "s1", Email: "ann@example.com", Name: "Ann", Level: level})
	requests := newMockLevelRequestRepo(students)
	cacheRepo := newMockCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewLevelRequestService(requests, students, cache, NewMetricsService(), nil, zap.NewNop())
	return svc, requests, students, cacheRepo
}

func TestLevelRequestCreateRejectsLevelAtOrBelowCurrent(t *testing.T) {
	for _, requested := range []int{1, 2, 3} {
		svc, _, _, _ := newLevelRequestFixture(3)
		_, err := svc.Create(context.Background(), "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(requested)})
		assert.ErrorIs(t, err, appErrors.ErrInvalidLevel, "requested %d", requested)
	}
}

func TestLevelRequestCreateValidationOrder(t *testing.T) {
	svc, _, _, _ := newLevelRequestFixture(1)

	_, err := svc.Create(context.Background(), "missing", dto.CreateLevelRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), "missing", dto.CreateLevelRequest{RequestedLevel: intPtr(4)})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestLevelRequestCreateDedupIsPerLevel(t *testing.T) {
	svc, _, _, _ := newLevelRequestFixture(1)
	ctx := context.Background()

	first, err := svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(3), Message: "please"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.CurrentLevel)
	assert.Equal(t, models.LevelRequestPending, first.Status)
	require.NotNil(t, first.Message)

	_, err = svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(3)})
	assert.ErrorIs(t, err, appErrors.ErrDuplicatePending)
	assert.Equal(t, 409, appErrors.FromError(err).Status)

	_, err = svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(5)})
	assert.NoError(t, err)
}

func TestLevelRequestApproveSetsRequestedLevel(t *testing.T) {
	svc, _, students, _ := newLevelRequestFixture(1)
	ctx := context.Background()

	lr, err := svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(4)})
	require.NoError(t, err)

	// The student's level moves after filing; approval still wins.
	s, _ := students.FindByID(ctx, "s1")
	s.Level = 6
	require.NoError(t, students.Update(ctx, s))

	approved, err := svc.Approve(ctx, lr.ID, dto.DecisionRequest{AdminResponse: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.LevelRequestApproved, approved.Status)
	require.NotNil(t, approved.AdminResponse)
	assert.Equal(t, "ok", *approved.AdminResponse)

	s, _ = students.FindByID(ctx, "s1")
	assert.Equal(t, 4, s.Level)
}

func TestLevelRequestRejectLeavesLevel(t *testing.T) {
	svc, _, students, _ := newLevelRequestFixture(2)
	ctx := context.Background()

	lr, err := svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(3)})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, lr.ID, dto.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.LevelRequestRejected, rejected.Status)
	assert.Nil(t, rejected.AdminResponse)

	s, _ := students.FindByID(ctx, "s1")
	assert.Equal(t, 2, s.Level)
}

func TestLevelRequestDecisionsAreTerminal(t *testing.T) {
	svc, _, students, _ := newLevelRequestFixture(1)
	ctx := context.Background()

	lr, err := svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(2)})
	require.NoError(t, err)
	_, err = svc.Reject(ctx, lr.ID, dto.DecisionRequest{})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, lr.ID, dto.DecisionRequest{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	s, _ := students.FindByID(ctx, "s1")
	assert.Equal(t, 1, s.Level)

	_, err = svc.Approve(ctx, "missing", dto.DecisionRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestLevelRequestDecisionMalformedID(t *testing.T) {
	svc, requests, _, _ := newLevelRequestFixture(1)
	ctx := context.Background()

	lr, err := svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(2)})
	require.NoError(t, err)

	for _, id := range []string{"abc", "1", lr.ID + "x"} {
		_, err = svc.Approve(ctx, id, dto.DecisionRequest{})
		assert.ErrorIs(t, err, appErrors.ErrNotFound, id)
		_, err = svc.Reject(ctx, id, dto.DecisionRequest{})
		assert.ErrorIs(t, err, appErrors.ErrNotFound, id)
	}
	assert.Equal(t, 0, requests.decided, "malformed ids never reach the store")

	approved, err := svc.Approve(ctx, strings.ToUpper(lr.ID), dto.DecisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, lr.ID, approved.ID)
}

func TestLevelRequestPendingCountIsCachedAndInvalidated(t *testing.T) {
	svc, requests, _, cacheRepo := newLevelRequestFixture(1)
	ctx := context.Background()

	count, hit, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, hit)

	count, hit, err = svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, requests.counted)

	_, err = svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(2)})
	require.NoError(t, err)
	assert.False(t, cacheRepo.has(cacheKeyPendingCount))

	count, hit, err = svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, count)
}

func TestLevelRequestListings(t *testing.T) {
	svc, _, _, _ := newLevelRequestFixture(1)
	ctx := context.Background()

	first, err := svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(2)})
	require.NoError(t, err)
	second, err := svc.Create(ctx, "s1", dto.CreateLevelRequest{RequestedLevel: intPtr(3)})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, first.ID, dto.DecisionRequest{})
	require.NoError(t, err)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	pending, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	mine, err := svc.ListMine(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
