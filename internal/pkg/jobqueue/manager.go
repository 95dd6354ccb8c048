package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/huntyio/membership/internal/pkg/cache"
	"github.com/huntyio/membership/internal/pkg/config"
)

const defaultReportInterval = 5 * time.Minute

// Manager owns the process-wide webhook job queue and its background reporter
type Manager struct {
	queue          *Queue
	reportInterval time.Duration
	reportTicker   *time.Ticker
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager builds a manager over the given redis client and queue settings
func NewManager(client *redis.Client, cfg config.Queue) *Manager {
	return &Manager{
		queue:          NewQueue(client, cfg.Workers, cfg.MaxRetries),
		reportInterval: defaultReportInterval,
		stopCh:         make(chan struct{}),
	}
}

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(cache.GetClient(), config.Get().Queue)
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// RegisterHandler binds a job handler on the managed queue
func (m *Manager) RegisterHandler(jobType JobType, h Handler) {
	m.queue.RegisterHandler(jobType, h)
}

// Start starts the job queue and the depth reporter
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	m.reportTicker = time.NewTicker(m.reportInterval)
	m.wg.Add(1)
	go m.reportWorker(m.stopCh, m.reportTicker)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reportTicker != nil {
		m.reportTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reportWorker periodically logs queue depth
func (m *Manager) reportWorker(stopCh <-chan struct{}, ticker *time.Ticker) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Report worker stopping")
			return
		case <-ticker.C:
			m.reportOnce(context.Background())
		}
	}
}

func (m *Manager) reportOnce(ctx context.Context) {
	pending, err := m.queue.GetQueueSize(ctx)
	if err != nil {
		log.Errorf("[JobQueue Manager] Queue size error: %v", err)
		return
	}
	processing, err := m.queue.GetProcessingSize(ctx)
	if err != nil {
		log.Errorf("[JobQueue Manager] Processing size error: %v", err)
		return
	}
	if pending > 0 || processing > 0 {
		log.Infof("[JobQueue Manager] pending=%d processing=%d", pending, processing)
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
