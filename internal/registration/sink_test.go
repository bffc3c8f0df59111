package registration

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymunastore/aretenvi/internal/types"
)

func completeFields() types.Fields {
	return types.Fields{
		FullName:             "Jane Doe",
		Email:                "jane@example.com",
		Phone:                "+2348031234567",
		ServiceType:          "Residential Waste Collection",
		PropertyType:         "Residential Home",
		Location:             "12 Aka Road, Uyo",
		PreferredContactTime: "Morning (8AM - 12PM)",
	}
}

func submission(conversationID string) Submission {
	return Submission{
		ConversationID: conversationID,
		CorrelationKey: "+2348031234567",
		Fields:         completeFields(),
	}
}

func forEachSink(t *testing.T, opts []Option, fn func(t *testing.T, sink Sink)) {
	factories := map[string]func(t *testing.T) Sink{
		"memory": func(t *testing.T) Sink {
			return NewMemorySink(opts...)
		},
		"gorm-sqlite": func(t *testing.T) Sink {
			sink, err := NewGormSink("sqlite", filepath.Join(t.TempDir(), "registrations.db"), opts...)
			require.NoError(t, err)
			return sink
		},
	}
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			sink := factory(t)
			t.Cleanup(func() { _ = sink.Close() })
			fn(t, sink)
		})
	}
}

func TestFinalizeCreatesPendingRegistration(t *testing.T) {
	fixed := time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC)
	opts := []Option{WithClock(func() time.Time { return fixed }), WithReferencePrefix("ARET")}
	forEachSink(t, opts, func(t *testing.T, sink Sink) {
		ctx := context.Background()
		reg, err := sink.Finalize(ctx, submission("conv-1"))
		require.NoError(t, err)

		assert.NotEmpty(t, reg.ID)
		assert.Regexp(t, `^ARET-261015-[2-9A-HJKMNP-Z]{5}$`, reg.ReferenceNumber)
		assert.Equal(t, types.RegistrationStatusPending, reg.Status)
		assert.Equal(t, types.RegistrationSourceWhatsApp, reg.Source)
		assert.Equal(t, "conv-1", reg.ConversationID)
		assert.Nil(t, reg.Fields.AdditionalComments)

		found, err := sink.Lookup(ctx, reg.ReferenceNumber)
		require.NoError(t, err)
		assert.Equal(t, reg.ID, found.ID)
		assert.Equal(t, completeFields().FullName, found.Fields.FullName)
		assert.WithinDuration(t, fixed, found.CreatedAt, time.Second)
	})
}

func TestFinalizeIsIdempotentPerConversation(t *testing.T) {
	forEachSink(t, nil, func(t *testing.T, sink Sink) {
		ctx := context.Background()
		first, err := sink.Finalize(ctx, submission("conv-1"))
		require.NoError(t, err)
		second, err := sink.Finalize(ctx, submission("conv-1"))
		require.NoError(t, err)
		assert.Equal(t, first.ReferenceNumber, second.ReferenceNumber)
		assert.Equal(t, first.ID, second.ID)

		other, err := sink.Finalize(ctx, submission("conv-2"))
		require.NoError(t, err)
		assert.NotEqual(t, first.ReferenceNumber, other.ReferenceNumber)
	})
}

func TestFinalizeConcurrentSameConversation(t *testing.T) {
	forEachSink(t, nil, func(t *testing.T, sink Sink) {
		ctx := context.Background()
		const attempts = 6
		refs := make(chan string, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				reg, err := sink.Finalize(ctx, submission("conv-race"))
				if assert.NoError(t, err) {
					refs <- reg.ReferenceNumber
				}
			}()
		}
		wg.Wait()
		close(refs)

		distinct := make(map[string]struct{})
		for ref := range refs {
			distinct[ref] = struct{}{}
		}
		assert.Len(t, distinct, 1)
	})
}

func TestFinalizeKeepsComments(t *testing.T) {
	forEachSink(t, nil, func(t *testing.T, sink Sink) {
		sub := submission("conv-1")
		comments := "Gate code is 4411"
		sub.Fields.AdditionalComments = &comments

		reg, err := sink.Finalize(context.Background(), sub)
		require.NoError(t, err)
		found, err := sink.Lookup(context.Background(), reg.ReferenceNumber)
		require.NoError(t, err)
		assert.Equal(t, "Gate code is 4411", found.Fields.Comments())
	})
}

func TestFinalizeRetriesOnReferenceCollision(t *testing.T) {
	var mu sync.Mutex
	candidates := []string{"ARET-261015-AAAAA", "ARET-261015-AAAAA", "ARET-261015-BBBBB"}
	gen := func(time.Time) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		next := candidates[0]
		if len(candidates) > 1 {
			candidates = candidates[1:]
		}
		return next, nil
	}
	forEachSink(t, []Option{WithReferenceGenerator(gen)}, func(t *testing.T, sink Sink) {
		mu.Lock()
		candidates = []string{"ARET-261015-AAAAA", "ARET-261015-AAAAA", "ARET-261015-BBBBB"}
		mu.Unlock()

		first, err := sink.Finalize(context.Background(), submission("conv-1"))
		require.NoError(t, err)
		assert.Equal(t, "ARET-261015-AAAAA", first.ReferenceNumber)

		second, err := sink.Finalize(context.Background(), submission("conv-2"))
		require.NoError(t, err)
		assert.Equal(t, "ARET-261015-BBBBB", second.ReferenceNumber)
	})
}

func TestFinalizeReferenceExhausted(t *testing.T) {
	gen := func(time.Time) (string, error) { return "ARET-261015-CCCCC", nil }
	forEachSink(t, []Option{WithReferenceGenerator(gen), WithMaxAttempts(3)}, func(t *testing.T, sink Sink) {
		_, err := sink.Finalize(context.Background(), submission("conv-1"))
		require.NoError(t, err)

		_, err = sink.Finalize(context.Background(), submission("conv-2"))
		require.ErrorIs(t, err, ErrReferenceExhausted)
	})
}

func TestFinalizeRejectsIncompleteSubmission(t *testing.T) {
	forEachSink(t, nil, func(t *testing.T, sink Sink) {
		sub := submission("conv-1")
		sub.Fields.Email = ""
		_, err := sink.Finalize(context.Background(), sub)
		require.ErrorIs(t, err, ErrIncomplete)
		assert.Contains(t, err.Error(), "email")

		_, err = sink.Finalize(context.Background(), Submission{CorrelationKey: "k", Fields: completeFields()})
		require.Error(t, err)
	})
}

func TestLookupNotFound(t *testing.T) {
	forEachSink(t, nil, func(t *testing.T, sink Sink) {
		_, err := sink.Lookup(context.Background(), "ARET-000000-ZZZZZ")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLookupNormalizesReference(t *testing.T) {
	forEachSink(t, nil, func(t *testing.T, sink Sink) {
		reg, err := sink.Finalize(context.Background(), submission("conv-1"))
		require.NoError(t, err)
		found, err := sink.Lookup(context.Background(), "  "+strings.ToLower(reg.ReferenceNumber)+" ")
		require.NoError(t, err)
		assert.Equal(t, reg.ID, found.ID)
	})
}

func TestMemorySinkStoresOnePerConversation(t *testing.T) {
	sink := NewMemorySink()
	for i := 0; i < 3; i++ {
		_, err := sink.Finalize(context.Background(), submission("conv-1"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, sink.count())
}
