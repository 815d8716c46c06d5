package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkgate-service/internal/domain/access"
)

func TestListSessionsFiltersAndNormalizes(t *testing.T) {
	r := newRig(t, baseConfig())
	ctx := context.Background()

	_, err := r.manager.Open(ctx, "ABC123", "cam-1", testBase)
	require.NoError(t, err)
	_, err = r.manager.Open(ctx, "XYZ789", "cam-1", testBase.Add(time.Minute))
	require.NoError(t, err)

	// The plate filter is normalized the same way ingestion is.
	plate := "abc 123"
	sessions, err := r.manager.ListSessions(ctx, &plate, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "ABC123", sessions[0].Plate)

	status := string(access.SessionActive)
	sessions, err = r.manager.ListSessions(ctx, nil, &status, 0, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestListSessionsRejectsInvalidStatus(t *testing.T) {
	r := newRig(t, baseConfig())

	status := "PARKED"
	_, err := r.manager.ListSessions(context.Background(), nil, &status, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetSession(t *testing.T) {
	r := newRig(t, baseConfig())
	ctx := context.Background()

	created, err := r.manager.Open(ctx, "ABC123", "cam-1", testBase)
	require.NoError(t, err)

	found, err := r.manager.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = r.manager.GetSession(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindEventsRejectsBadTimeFormat(t *testing.T) {
	r := newRig(t, baseConfig())

	from := "yesterday"
	_, err := r.svc.FindEvents(context.Background(), nil, &from, nil, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
