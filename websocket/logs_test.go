package websocket

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

func TestHandlerWithLogsIncCounter(t *testing.T) {
	h := HandlerWithLogs(&ConsoleHandler{}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test")
	require.Equal(t, 1, h.counter["test"])
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	testClientID := "test-client"
	h := HandlerWithLogs(&ConsoleHandler{clientID: testClientID}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.mapName = "dungeon"
	h.incCounter("ray")
	h.incCounter("ray")
	h.incCounter("spawn")

	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()
		fmt.Fprint(&b, e)
	})

	h.logSummary()
	require.Empty(t, h.counter)

	mutex.Lock()
	logString := b.String()
	mutex.Unlock()

	require.Contains(t, logString, `"ray":2`)
	require.Contains(t, logString, `"spawn":1`)
	require.Contains(t, logString, fmt.Sprintf(`"%s":"%s"`, clientIDTag, testClientID))
	require.Contains(t, logString, fmt.Sprintf(`"%s":"dungeon"`, mapTag))
	t.Log(logString)
}

func TestHandlerWithLogsLogSummaryEmpty(t *testing.T) {
	h := HandlerWithLogs(&ConsoleHandler{}, time.Hour).(*handlerWithLogs)
	defer h.Close()

	var logged bool
	logs.SetLogger(func(e logs.Entry) {
		logged = true
	})

	h.logSummary()
	require.False(t, logged)
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once

	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()
		fmt.Fprint(&b, e)
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&ConsoleHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// No summary is logged until a counter is incremented.
	h.incCounter("objects")

	wg.Wait()

	mutex.Lock()
	out := b.String()
	mutex.Unlock()

	require.NotEmpty(t, out)
	t.Log(out)
}
