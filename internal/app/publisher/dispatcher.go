package publisher

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tasklife/project/internal/platform/metrics"
)

var publishedTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "lifecycle_events_published_total",
	Help: "Events successfully handed to the bus, by topic.",
}, []string{"topic"})

var publishFailedTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "lifecycle_publish_failures_total",
	Help: "Bus sends that failed after the fire-and-forget boundary, by topic.",
}, []string{"topic"})

var queueDroppedTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "lifecycle_publish_queue_dropped_total",
	Help: "Messages dropped because the publish queue was full, by topic.",
}, []string{"topic"})

func init() {
	metrics.Default.MustRegister(publishedTotal, publishFailedTotal, queueDroppedTotal)
}

// PublishFunc sends one message to the bus.
type PublishFunc func(subject string, payload []byte) error

type message struct {
	topic   string
	subject string
	payload []byte
}

// Dispatcher is the explicit fire-and-forget boundary: a bounded queue drained
// by a fixed worker pool. Enqueue never blocks the caller and no failure past
// it ever reaches the caller.
type Dispatcher struct {
	publish PublishFunc
	queue   chan message
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(publish PublishFunc, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	d := &Dispatcher{
		publish: publish,
		queue:   make(chan message, queueSize),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		if err := d.publish(msg.subject, msg.payload); err != nil {
			log.Errorf("publish to %s failed: %v", msg.subject, err)
			publishFailedTotal.WithLabelValues(msg.topic).Inc()
			continue
		}
		publishedTotal.WithLabelValues(msg.topic).Inc()
	}
}

// Enqueue hands a message to the worker pool. A full queue drops the message
// with a log line and a counter bump; the caller still succeeds.
func (d *Dispatcher) Enqueue(topic, subject string, payload []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- message{topic: topic, subject: subject, payload: payload}:
		return true
	default:
		log.Warnf("publish queue full, dropping %s message for %s", topic, subject)
		queueDroppedTotal.WithLabelValues(topic).Inc()
		return false
	}
}

// Stop drains the queue and waits for the workers to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}
