package fault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lk2023060901/zeus-host/pkg/logger"
)

type recordingSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *recordingSink) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func TestGuardForwardsAndRepanics(t *testing.T) {
	sink := &recordingSink{}
	h := NewHooks(sink)
	require.NoError(t, h.Install())

	assert.PanicsWithValue(t, "kaboom", func() {
		defer h.Guard()
		panic("kaboom")
	})

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "kaboom")
}

func TestForward(t *testing.T) {
	sink := &recordingSink{}
	h := NewHooks(sink)

	h.Forward("before install")
	assert.Empty(t, sink.all())

	require.NoError(t, h.Install())
	h.Forward(nil)
	h.Forward(errors.New("disk full"))

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "disk full")
}

func TestGuardWithoutPanic(t *testing.T) {
	sink := &recordingSink{}
	h := NewHooks(sink)
	require.NoError(t, h.Install())

	assert.NotPanics(t, func() {
		defer h.Guard()
	})
	assert.Empty(t, sink.all())
}

func TestUnobservedRequiresInstall(t *testing.T) {
	sink := &recordingSink{}
	h := NewHooks(sink)

	h.Unobserved(errors.New("early"))
	assert.Empty(t, sink.all())

	require.NoError(t, h.Install())
	h.Unobserved(nil)
	h.Unobserved(errors.New("late"))

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "late")
}

func TestInstallRunsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "crash.log")
	h := NewHooks(nil, WithCrashOutput(path))

	err := h.Install()
	require.Error(t, err)
	assert.True(t, h.Installed())

	// 第二次调用不会重新打开文件，返回同一个结果。
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	assert.Equal(t, err, h.Install())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHandlerLogsWithStack(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewHandler(logger.NewFromZap(zap.New(core)))

	h.OnError(nil)
	h.OnError(FromPanic("bad"))
	h.OnError(FromPanic(errors.New("worse")))

	assert.Equal(t, int64(2), h.Count())
	entries := logs.FilterMessage("unhandled error").All()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1].ContextMap()["detail"], "worse")
}

func TestFromPanicKeepsChainWithOneStack(t *testing.T) {
	err := FromPanic(io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, 1, strings.Count(fmt.Sprintf("%+v", err), "attached stack trace"))

	err = FromPanic(42)
	assert.EqualError(t, err, "panic: 42")
}
