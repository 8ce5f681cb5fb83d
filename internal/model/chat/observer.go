package chat

// Observer receives everything the channels produce for presentation.
// Callbacks from different channels may run on different goroutines.
//
// OnEvent runs on the event subscription's own goroutine, and stopping or
// re-arming that subscription waits for the goroutine to exit. OnEvent must
// therefore not switch or stop the event feed synchronously; hand the call
// to another goroutine instead.
type Observer interface {
	OnChunk(text string)
	OnComplete(sessionID, finalText string)
	OnError(message string)
	OnEvent(ev EventPayload)
	OnConnectionStateChange(channel string, state ChannelState)
}

// ObserverFuncs adapts optional callbacks to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Chunk       func(text string)
	Complete    func(sessionID, finalText string)
	Error       func(message string)
	Event       func(ev EventPayload)
	StateChange func(channel string, state ChannelState)
}

var _ Observer = ObserverFuncs{}

func (o ObserverFuncs) OnChunk(text string) {
	if o.Chunk != nil {
		o.Chunk(text)
	}
}

func (o ObserverFuncs) OnComplete(sessionID, finalText string) {
	if o.Complete != nil {
		o.Complete(sessionID, finalText)
	}
}

func (o ObserverFuncs) OnError(message string) {
	if o.Error != nil {
		o.Error(message)
	}
}

func (o ObserverFuncs) OnEvent(ev EventPayload) {
	if o.Event != nil {
		o.Event(ev)
	}
}

func (o ObserverFuncs) OnConnectionStateChange(channel string, state ChannelState) {
	if o.StateChange != nil {
		o.StateChange(channel, state)
	}
}
