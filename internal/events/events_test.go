package events

import (
	"context"
	"errors"
	"testing"

	"swapguard/internal/domain"
	"swapguard/internal/logtest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroadcaster struct {
	subjects []string
	payloads []interface{}
	err      error
}

func (f *fakeBroadcaster) Publish(_ context.Context, subject string, data interface{}) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

func (f *fakeBroadcaster) Health(context.Context) error { return nil }

// ========== Fan-out Tests ==========

func TestMulti_FansOutInOrder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, nil, b}
	ev := domain.Event{Kind: domain.EventSwapQueued, PoolID: common.HexToHash("0x01")}

	m.Emit(context.Background(), ev)

	assert.Equal(t, []domain.Event{ev}, a.Events())
	assert.Equal(t, []domain.Event{ev}, b.Events())
}

func TestRecorder_OfKindAndReset(t *testing.T) {
	r := &Recorder{}
	r.Emit(context.Background(), domain.Event{Kind: domain.EventPriceRecorded})
	r.Emit(context.Background(), domain.Event{Kind: domain.EventSwapFailed, Reason: "swap_failed"})
	r.Emit(context.Background(), domain.Event{Kind: domain.EventPriceRecorded})

	assert.Len(t, r.OfKind(domain.EventPriceRecorded), 2)
	require.Len(t, r.OfKind(domain.EventSwapFailed), 1)
	assert.Equal(t, "swap_failed", r.OfKind(domain.EventSwapFailed)[0].Reason)

	r.Reset()
	assert.Empty(t, r.Events())
}

// ========== BroadcastSink Tests ==========

func TestBroadcastSink_Subject(t *testing.T) {
	fb := &fakeBroadcaster{}
	s := NewBroadcastSink(fb, "swapguard", logtest.New())
	ev := domain.Event{Kind: domain.EventBatchExecuted, Executed: 3}

	s.Emit(context.Background(), ev)

	require.Len(t, fb.subjects, 1)
	assert.Equal(t, "swapguard.out.batch_executed", fb.subjects[0])
	assert.Equal(t, ev, fb.payloads[0])
}

func TestBroadcastSink_DefaultPrefix(t *testing.T) {
	fb := &fakeBroadcaster{}

	NewBroadcastSink(fb, "", logtest.New()).Emit(context.Background(), domain.Event{Kind: domain.EventSwapQueued})

	assert.Equal(t, []string{"hook.out.swap_queued"}, fb.subjects)
}

func TestBroadcastSink_PublishErrorIsLogged(t *testing.T) {
	fb := &fakeBroadcaster{err: errors.New("nats down")}
	log := &logtest.Capture{}

	NewBroadcastSink(fb, "p", log).Emit(context.Background(), domain.Event{Kind: domain.EventSwapFailed})

	require.Len(t, log.Errors(), 1)
	assert.Contains(t, log.Errors()[0], "nats down")
	assert.Contains(t, log.Errors()[0], "p.out.swap_failed")
}

func TestLogSink_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogSink(logtest.New()).Emit(context.Background(), domain.Event{Kind: domain.EventInvalidReveal})
		Nop{}.Emit(context.Background(), domain.Event{})
	})
}
