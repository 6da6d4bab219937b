// Package events defines the capability interfaces the operation cache
// consumes from its environment: memory-pressure signals, notification
// posts, network reachability, alert delivery, and raw HTTP transport.
// The core never implements these against a real platform; adapters do
// (see adapters/redisnotify and adapters/amqpnotify), and tests use the
// in-memory fakes this package ships.
package events

import (
	"context"
	"net/http"
	"sync"

	"eve.evalgo.org/operation/subscription"
)

// PressureLevel is the severity of a memory-pressure signal.
type PressureLevel string

const (
	PressureNormal   PressureLevel = "normal"
	PressureWarning  PressureLevel = "warning"
	PressureCritical PressureLevel = "critical"
)

// MemoryPressureSource delivers pressure signals to subscribers. The
// client's store cache uses these to evict idle stores.
type MemoryPressureSource interface {
	Subscribe(onPressure func(PressureLevel)) *subscription.Subscription
}

// Notification is a named event posted by the environment (a push
// message, a settings change, an application-lifecycle signal).
type Notification struct {
	Name    string
	Payload map[string]interface{}
}

// NotificationSource delivers notifications with a given name to
// subscribers.
type NotificationSource interface {
	Subscribe(name string, onPost func(Notification)) *subscription.Subscription
}

// NetworkStatus is the reachability state an observer reports.
type NetworkStatus string

const (
	NetworkConnected          NetworkStatus = "connected"
	NetworkDisconnected       NetworkStatus = "disconnected"
	NetworkRequiresConnection NetworkStatus = "requires_connection"
)

// NetworkStatusObserver reports the current reachability state and
// changes to it.
type NetworkStatusObserver interface {
	CurrentStatus() NetworkStatus
	Subscribe(onChange func(NetworkStatus)) *subscription.Subscription
}

// AlertMessage is what an alerting modifier posts on a terminal result.
type AlertMessage struct {
	Title string
	Body  string
	Err   error
}

// AlertSink receives alert messages from alerting modifiers.
type AlertSink interface {
	Post(AlertMessage)
}

// AlertSinkFunc adapts a function to an AlertSink.
type AlertSinkFunc func(AlertMessage)

// Post calls f.
func (f AlertSinkFunc) Post(m AlertMessage) { f(m) }

// ChannelAlertSink delivers alerts to a channel, dropping when the
// channel is full so a slow consumer can't block a store's fan-out.
type ChannelAlertSink struct {
	C chan AlertMessage
}

// NewChannelAlertSink returns a sink buffering up to size alerts.
func NewChannelAlertSink(size int) *ChannelAlertSink {
	return &ChannelAlertSink{C: make(chan AlertMessage, size)}
}

// Post delivers m to the channel if there is room.
func (s *ChannelAlertSink) Post(m AlertMessage) {
	select {
	case s.C <- m:
	default:
	}
}

// HTTPTransport is an opaque supplier of response bytes for a request.
// The cache does not parse HTTP; operation bodies that talk to the
// network are handed one of these.
type HTTPTransport interface {
	Data(ctx context.Context, req *http.Request) ([]byte, *http.Response, error)
}

// FakePressureSource is an in-memory MemoryPressureSource for tests and
// demos: Emit delivers a level to every subscriber synchronously.
type FakePressureSource struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(PressureLevel)
}

// NewFakePressureSource returns an empty fake source.
func NewFakePressureSource() *FakePressureSource {
	return &FakePressureSource{subs: make(map[int]func(PressureLevel))}
}

// Subscribe registers onPressure until the returned subscription is
// cancelled.
func (f *FakePressureSource) Subscribe(onPressure func(PressureLevel)) *subscription.Subscription {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = onPressure
	f.mu.Unlock()
	return subscription.New(func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	})
}

// Emit delivers level to every current subscriber.
func (f *FakePressureSource) Emit(level PressureLevel) {
	f.mu.Lock()
	subs := make([]func(PressureLevel), 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s(level)
	}
}

// FakeNotificationSource is an in-memory NotificationSource for tests
// and demos.
type FakeNotificationSource struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]namedSub
}

type namedSub struct {
	name   string
	onPost func(Notification)
}

// NewFakeNotificationSource returns an empty fake source.
func NewFakeNotificationSource() *FakeNotificationSource {
	return &FakeNotificationSource{subs: make(map[int]namedSub)}
}

// Subscribe registers onPost for notifications with name.
func (f *FakeNotificationSource) Subscribe(name string, onPost func(Notification)) *subscription.Subscription {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = namedSub{name: name, onPost: onPost}
	f.mu.Unlock()
	return subscription.New(func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	})
}

// Post delivers n to every subscriber registered for n.Name.
func (f *FakeNotificationSource) Post(n Notification) {
	f.mu.Lock()
	subs := make([]func(Notification), 0, len(f.subs))
	for _, s := range f.subs {
		if s.name == n.Name {
			subs = append(subs, s.onPost)
		}
	}
	f.mu.Unlock()
	for _, s := range subs {
		s(n)
	}
}

// FakeNetworkObserver is an in-memory NetworkStatusObserver for tests
// and demos.
type FakeNetworkObserver struct {
	mu     sync.Mutex
	status NetworkStatus
	nextID int
	subs   map[int]func(NetworkStatus)
}

// NewFakeNetworkObserver returns an observer reporting status.
func NewFakeNetworkObserver(status NetworkStatus) *FakeNetworkObserver {
	return &FakeNetworkObserver{status: status, subs: make(map[int]func(NetworkStatus))}
}

// CurrentStatus returns the most recently set status.
func (f *FakeNetworkObserver) CurrentStatus() NetworkStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Subscribe registers onChange until the returned subscription is
// cancelled.
func (f *FakeNetworkObserver) Subscribe(onChange func(NetworkStatus)) *subscription.Subscription {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = onChange
	f.mu.Unlock()
	return subscription.New(func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	})
}

// SetStatus changes the reported status and notifies subscribers.
func (f *FakeNetworkObserver) SetStatus(status NetworkStatus) {
	f.mu.Lock()
	f.status = status
	subs := make([]func(NetworkStatus), 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s(status)
	}
}
