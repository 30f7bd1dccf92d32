package handler

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrail/internal/changetrack/models"
	audit "casetrail/pkg/platform/audit"
)

func TestTransactionAssignment(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name         string
		before       *string
		after        *string
		wantState    State
		wantActivity audit.ActivityType
		wantSummary  string
		wantUser     string
		wantOld      string
		wantNew      string
	}{
		{
			name:         "null to value is an assignment",
			before:       nil,
			after:        strPtr("alice"),
			wantState:    StatePublished,
			wantActivity: audit.ActivityTransactionAssigned,
			wantSummary:  "User [alice] was assigned transaction TX-1",
			wantUser:     "alice",
			wantNew:      "alice",
		},
		{
			name:         "value to null is an unassignment",
			before:       strPtr("alice"),
			after:        nil,
			wantState:    StatePublished,
			wantActivity: audit.ActivityTransactionUnassigned,
			wantSummary:  "User [alice] was unassigned from transaction TX-1",
			wantUser:     "alice",
			wantOld:      "alice",
		},
		{
			name:         "value to other value is a reassignment",
			before:       strPtr("alice"),
			after:        strPtr("bob"),
			wantState:    StatePublished,
			wantActivity: audit.ActivityTransactionReassigned,
			wantSummary:  "Transaction TX-1 was reassigned from [alice] to [bob]",
			wantUser:     "bob",
			wantOld:      "alice",
			wantNew:      "bob",
		},
		{
			name:         "blank to value is a reassignment, not an assignment",
			before:       strPtr(""),
			after:        strPtr("alice"),
			wantState:    StatePublished,
			wantActivity: audit.ActivityTransactionReassigned,
			wantSummary:  "Transaction TX-1 was reassigned from [] to [alice]",
			wantUser:     "alice",
			wantNew:      "alice",
		},
		{
			name:      "same value is suppressed",
			before:    strPtr("alice"),
			after:     strPtr("alice"),
			wantState: StateSuppressed,
		},
		{
			name:      "null to null is suppressed",
			wantState: StateSuppressed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			tx := &models.Transaction{ID: "TX-1", AssignedTo: tc.before}

			h := env.tracker.TransactionAssignment()
			h.CaptureBefore(ctx, tx)
			tx.AssignedTo = tc.after
			h.CaptureAfter(ctx, tx)
			h.Publish(ctx, "originator-1")

			require.Equal(t, tc.wantState, h.State())
			require.NoError(t, h.Err())

			events := env.events(t)
			if tc.wantState == StateSuppressed {
				assert.Empty(t, events)
				_, ok := h.Event()
				assert.False(t, ok)
				assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Suppressed.WithLabelValues("transaction_assignment")))
				return
			}

			require.Len(t, events, 1)
			got := events[0]
			assert.Equal(t, tc.wantActivity, got.ActivityType)
			assert.Equal(t, tc.wantSummary, got.Summary)
			assert.Equal(t, tc.wantUser, got.UserID)
			assert.Equal(t, "originator-1", got.OriginatorID)
			assert.Equal(t, "TX-1", got.BusinessObjectID)
			assert.Equal(t, audit.BusinessObjectTransaction, got.BusinessObjectType)
			assert.Equal(t, tc.wantOld, got.Data.OldState)
			assert.Equal(t, tc.wantNew, got.Data.NewState)

			emitted, ok := h.Event()
			require.True(t, ok)
			assert.Equal(t, got.ID, emitted.ID)
			assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Published.WithLabelValues("transaction_assignment")))
		})
	}
}

func TestTransactionAssignmentSnapshotIsCopied(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	assignee := "alice"
	tx := &models.Transaction{ID: "TX-2", AssignedTo: &assignee}

	h := env.tracker.TransactionAssignment()
	h.CaptureBefore(ctx, tx)
	assignee = "bob"
	h.CaptureAfter(ctx, tx)
	h.Publish(ctx, "originator-1")

	require.Equal(t, StatePublished, h.State())
	events := env.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActivityTransactionReassigned, events[0].ActivityType)
	assert.Equal(t, "alice", events[0].Data.OldState)
}

func TestTransactionAssignmentIdentityChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	h := env.tracker.TransactionAssignment()
	h.CaptureBefore(ctx, &models.Transaction{ID: "TX-1"})
	h.CaptureAfter(ctx, &models.Transaction{ID: "TX-9", AssignedTo: strPtr("alice")})
	h.Publish(ctx, "originator-1")

	assert.Equal(t, StateFailed, h.State())
	assert.Empty(t, env.events(t))
	assert.Contains(t, env.logs.String(), "TX-1")
}
