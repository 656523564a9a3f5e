package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/it35lab/campusfeed/model"
	Logger "github.com/it35lab/campusfeed/utils/log"
)

// Signals buffered per connection before new ones are dropped.
const signalBufferSize = 16

// SignalChannels holds every live connection, grouped by user. A user may
// have several connections (devices), each with its own channel.
type SignalChannels struct {
	// user id -> channel id -> channel. A user's entry is removed with its
	// last connection.
	connectionMap map[string]map[string]chan *model.Signal

	// Adding or removing a connection takes the write lock, pushing a signal
	// the read lock.
	mu sync.RWMutex
}

func NewSignalChannels() *SignalChannels {
	return &SignalChannels{
		connectionMap: make(map[string]map[string]chan *model.Signal),
	}
}

// cleanUp removes a connection once its context is done.
func (sc *SignalChannels) cleanUp(ctx context.Context, chId string, userId string) {
	<-ctx.Done()

	sc.mu.Lock()
	defer sc.mu.Unlock()

	delete(sc.connectionMap[userId], chId)
	if len(sc.connectionMap[userId]) == 0 {
		delete(sc.connectionMap, userId)
	}
}

// AddNewConnection registers a connection of userId that lives as long as
// ctx. Thread-safe.
func (sc *SignalChannels) AddNewConnection(ctx context.Context, userId string) (<-chan *model.Signal, string) {
	chId := "signal_channel_" + uuid.New().String()
	ch := make(chan *model.Signal, signalBufferSize)

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, ok := sc.connectionMap[userId]; !ok {
		sc.connectionMap[userId] = make(map[string]chan *model.Signal)
	}
	sc.connectionMap[userId][chId] = ch

	go sc.cleanUp(ctx, chId, userId)

	return ch, chId
}

// Thread-safe
func (sc *SignalChannels) GetActiveConnectionsCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	count := 0
	for _, mp := range sc.connectionMap {
		count += len(mp)
	}
	return count
}

// PushSignalToUser delivers signal to every connection of userId. A
// connection whose buffer is full misses the signal. Thread-safe.
func (sc *SignalChannels) PushSignalToUser(signal *model.Signal, userId string) error {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	userChannels, ok := sc.connectionMap[userId]
	if !ok {
		return errors.New("no active connection for user: " + userId)
	}
	for chId, ch := range userChannels {
		select {
		case ch <- signal:
		default:
			Logger.Log.WithField("channel", chId).Warnln("signal channel full, drop signal", signal.SignalType)
		}
	}
	return nil
}

// Notify pushes a NOTIFICATION signal, users without a live connection
// simply see it on their next List.
func (sc *SignalChannels) Notify(userId string, notification model.Notification) {
	signal, err := model.NewSignal(model.SignalTypeNotification, notification)
	if err != nil {
		Logger.Log.Errorln("cannot encode notification signal", err)
		return
	}
	sc.PushSignalToUser(signal, userId)
}
