package task

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

var taskDurationHistogram = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "maestro_background_task_latency_seconds",
		Help:    "Background loop latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	},
	[]string{"task"},
)

func init() {
	prometheus.MustRegister(taskDurationHistogram)
}

type task struct {
	function    func()
	interval    time.Duration
	metricName  string
	stopChannel chan struct{}
}

// BackgroundTaskManager runs functions periodically until they are stopped.
// It is safe for concurrent use.
type BackgroundTaskManager struct {
	mu            sync.Mutex
	tasks         []*task
	metricsPrefix string
	wg            *sync.WaitGroup
}

func NewBackgroundTaskManager(metricsPrefix string) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		tasks:         []*task{},
		metricsPrefix: metricsPrefix,
		wg:            &sync.WaitGroup{},
	}
}

// Register starts calling backgroundTask every interval, starting immediately.
func (m *BackgroundTaskManager) Register(backgroundTask func(), interval time.Duration, metricName string) {
	task := &task{
		function:    backgroundTask,
		interval:    interval,
		metricName:  m.metricsPrefix + metricName,
		stopChannel: make(chan struct{}),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startBackgroundTask(task)
	m.tasks = append(m.tasks, task)
}

// StopAll stops every registered task and waits up to timeout for running invocations to return.
// It returns true if the wait timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	m.stopTasks()
	return m.waitForShutdownCompletion(timeout)
}

func (m *BackgroundTaskManager) startBackgroundTask(task *task) {
	observer := taskDurationHistogram.WithLabelValues(task.metricName)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(task.interval)
		defer ticker.Stop()
		for {
			start := time.Now()
			task.function()
			observer.Observe(time.Since(start).Seconds())

			select {
			case <-ticker.C:
			case <-task.stopChannel:
				return
			}
		}
	}()
}

func (m *BackgroundTaskManager) waitForShutdownCompletion(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false // completed normally
	case <-time.After(timeout):
		log.Warnf("Background tasks did not stop within %s", timeout)
		return true // timed out
	}
}

func (m *BackgroundTaskManager) stopTasks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		close(task.stopChannel)
	}
	m.tasks = nil
}
