package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	files []string
	err   error
}

func (l staticLister) ListFiles() ([]string, error) { return l.files, l.err }

// gatedProcessor reports each file on started and blocks until release.
type gatedProcessor struct {
	started chan string
	release chan struct{}

	mu   sync.Mutex
	seen []string
}

func newGatedProcessor() *gatedProcessor {
	return &gatedProcessor{started: make(chan string, 16), release: make(chan struct{})}
}

func (p *gatedProcessor) ProcessFile(ctx context.Context, rel string) error {
	p.started <- rel
	select {
	case <-p.release:
	case <-ctx.Done():
	}
	p.mu.Lock()
	p.seen = append(p.seen, rel)
	p.mu.Unlock()
	return nil
}

func (p *gatedProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestController_NoActiveJob(t *testing.T) {
	c := NewController(staticLister{}, ProcessorFunc(func(context.Context, string) error { return nil }))
	assert.False(t, c.Pause())
	assert.False(t, c.Resume())
	assert.False(t, c.Cancel())
	assert.Equal(t, Status{}, c.Status())
	assert.NoError(t, c.Wait(context.Background()))
}

func TestController_SingleFlight(t *testing.T) {
	p := newGatedProcessor()
	c := NewController(staticLister{files: []string{"a.go", "b.go"}}, p, WithPollInterval(5*time.Millisecond))
	ctx := waitCtx(t)

	id1, err := c.Start(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id1)
	<-p.started

	id2, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "a running job must not be restarted")

	st := c.Status()
	assert.True(t, st.Running)
	assert.Equal(t, int64(2), st.TotalFiles)
	assert.Nil(t, st.FinishedAt)

	p.release <- struct{}{}
	<-p.started
	p.release <- struct{}{}
	require.NoError(t, c.Wait(ctx))

	st = c.Status()
	assert.False(t, st.Running)
	assert.Equal(t, int64(2), st.ProcessedFiles)
	require.NotNil(t, st.FinishedAt)
	assert.False(t, st.FinishedAt.Before(*st.StartedAt))
	assert.Equal(t, []string{"a.go", "b.go"}, p.processed())

	assert.False(t, c.Pause(), "finished job is not active")

	id3, err := c.Start(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
	<-p.started
	p.release <- struct{}{}
	<-p.started
	p.release <- struct{}{}
	require.NoError(t, c.Wait(ctx))
}

func TestController_PauseResume(t *testing.T) {
	p := newGatedProcessor()
	c := NewController(staticLister{files: []string{"a.go", "b.go", "c.go"}}, p, WithPollInterval(5*time.Millisecond))
	ctx := waitCtx(t)

	_, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.go", <-p.started)
	require.True(t, c.Pause())
	p.release <- struct{}{}

	require.Eventually(t, func() bool { return c.Status().ProcessedFiles == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	st := c.Status()
	assert.True(t, st.Paused)
	assert.True(t, st.Running)
	assert.Equal(t, int64(1), st.ProcessedFiles, "paused worker must not advance")
	assert.Len(t, p.started, 0)

	require.True(t, c.Resume())
	assert.Equal(t, "b.go", <-p.started)
	p.release <- struct{}{}
	assert.Equal(t, "c.go", <-p.started)
	p.release <- struct{}{}
	require.NoError(t, c.Wait(ctx))
	assert.Equal(t, int64(3), c.Status().ProcessedFiles)
}

func TestController_CancelWhilePaused(t *testing.T) {
	p := newGatedProcessor()
	c := NewController(staticLister{files: []string{"a.go", "b.go", "c.go"}}, p, WithPollInterval(5*time.Millisecond))
	ctx := waitCtx(t)

	_, err := c.Start(ctx)
	require.NoError(t, err)
	<-p.started
	require.True(t, c.Pause())
	p.release <- struct{}{}
	require.Eventually(t, func() bool { return c.Status().ProcessedFiles == 1 }, 2*time.Second, 5*time.Millisecond)

	require.True(t, c.Cancel())
	require.NoError(t, c.Wait(ctx))

	st := c.Status()
	assert.True(t, st.Cancelled)
	assert.False(t, st.Running)
	assert.Equal(t, int64(1), st.ProcessedFiles)
	assert.Equal(t, []string{"a.go"}, p.processed())
}

func TestController_CancelInterruptsCurrentFile(t *testing.T) {
	p := newGatedProcessor()
	c := NewController(staticLister{files: []string{"a.go", "b.go"}}, p)
	ctx := waitCtx(t)

	_, err := c.Start(ctx)
	require.NoError(t, err)
	<-p.started
	require.True(t, c.Cancel())
	require.NoError(t, c.Wait(ctx))
	assert.Equal(t, []string{"a.go"}, p.processed())
	assert.Equal(t, int64(1), c.Status().ProcessedFiles)
}

func TestController_FileErrorsAreCounted(t *testing.T) {
	c := NewController(staticLister{files: []string{"a.go", "bad.go", "c.go"}},
		ProcessorFunc(func(_ context.Context, rel string) error {
			if rel == "bad.go" {
				return errors.New("unreadable")
			}
			return nil
		}))
	ctx := waitCtx(t)
	_, err := c.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Wait(ctx))
	assert.Equal(t, int64(3), c.Status().ProcessedFiles)
}

func TestController_ListError(t *testing.T) {
	c := NewController(staticLister{err: errors.New("root missing")}, ProcessorFunc(func(context.Context, string) error { return nil }))
	_, err := c.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, Status{}, c.Status())
}

func TestController_OnFinish(t *testing.T) {
	got := make(chan Status, 1)
	c := NewController(staticLister{files: []string{"a.go"}},
		ProcessorFunc(func(context.Context, string) error { return nil }),
		WithOnFinish(func(st Status) { got <- st }))
	ctx := waitCtx(t)

	id, err := c.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Wait(ctx))
	st := <-got
	assert.Equal(t, id, st.JobID)
	assert.False(t, st.Running)
	assert.Equal(t, int64(1), st.ProcessedFiles)
}

func TestController_StartDetachedFromCaller(t *testing.T) {
	p := newGatedProcessor()
	c := NewController(staticLister{files: []string{"a.go"}}, p)
	reqCtx, cancel := context.WithCancel(context.Background())

	_, err := c.Start(reqCtx)
	require.NoError(t, err)
	<-p.started
	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, c.Status().Running, "request cancellation must not stop the job")
	p.release <- struct{}{}
	require.NoError(t, c.Wait(waitCtx(t)))
	assert.False(t, c.Status().Cancelled)
}

func TestStatus_JSON(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	data, err := json.Marshal(Status{JobID: "j1", StartedAt: &started, TotalFiles: 3, ProcessedFiles: 1, Running: true})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"job_id", "started_at", "finished_at", "total_files", "processed_files", "paused", "cancelled", "running"} {
		assert.Contains(t, m, key)
	}
	assert.Nil(t, m["finished_at"])
	assert.Equal(t, "2024-05-01T10:00:00Z", m["started_at"])
}
