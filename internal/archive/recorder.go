// Package archive stores accepted chat messages off the request path.
package archive

import (
	"log/slog"
	"sync"

	"chatapp/backend/internal/models"

	"gorm.io/gorm"
)

// Recorder writes messages to the database from a fixed pool of workers.
type Recorder struct {
	db    *gorm.DB
	log   *slog.Logger
	queue chan models.Message
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(db *gorm.DB, workers, queueSize int, log *slog.Logger) *Recorder {
	r := &Recorder{
		db:    db,
		log:   log,
		queue: make(chan models.Message, queueSize),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for msg := range r.queue {
		if err := r.db.Create(&msg).Error; err != nil {
			r.log.Error("Failed to archive message", "channel", msg.Channel, "client_id", msg.ClientID, "error", err)
		}
	}
}

// Record queues msg without blocking. It returns false when the queue is
// full or the recorder is closed; the message is then dropped.
func (r *Recorder) Record(msg models.Message) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- msg:
		return true
	default:
		r.log.Warn("Archive queue full, dropping message", "channel", msg.Channel)
		return false
	}
}

// Close stops accepting messages and waits until the queued ones are written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

// Query selects the archived messages of channel, oldest first.
func (r *Recorder) Query(channel string) *gorm.DB {
	return r.db.Model(&models.Message{}).Where("channel = ?", channel).Order("id asc")
}
