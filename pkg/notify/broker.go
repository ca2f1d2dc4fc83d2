package notify

import "sync"

// Subscriber is a channel that receives notifications as they are created.
type Subscriber chan Notification

// Broker fans a CreateNotifications call out to any subscribers currently
// listening, independent of the persisted notify:* mechanism. It is a pure
// convenience layer: CreateNotifications always writes the persisted cell
// first and only then publishes here.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	notifyCh    chan Notification
	stopCh      chan struct{}
}

// NewBroker creates a broker. Call Start to begin its distribution loop.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		notifyCh:    make(chan Notification, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the distribution loop.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe returns a new channel that receives every notification
// published after the call.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish fans n out to every current subscriber.
func (b *Broker) Publish(n Notification) {
	select {
	case b.notifyCh <- n:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case n := <-b.notifyCh:
			b.broadcast(n)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- n:
		default:
			// subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
