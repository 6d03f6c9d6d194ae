package handlers

// ConnectionHandler is the transport's half of a single server connection.
// The session owns the matching ConnectionChannels.
type ConnectionHandler struct {
	Name            string
	GetNowTimestamp func() int64

	IncomingFrameChannel chan<- Frame
	OutgoingFrameChannel <-chan Frame

	// Transport reports the socket going away here, at most once
	TransportCloseChannel chan<- CloseCommand
	CloseRequests         <-chan CloseCommand
}

// ConnectionChannels is the session's half of a ConnectionHandler.
type ConnectionChannels struct {
	IncomingFrames <-chan Frame
	OutgoingFrames chan<- Frame

	TransportClosed <-chan CloseCommand
	CloseRequests   chan<- CloseCommand
}

type ConnectionHandlerParams struct {
	Name string

	IncomingFrameQueueLength uint32
	OutgoingFrameQueueLength uint32

	GetNowTimestamp func() int64
}

func CreateConnectionHandler(params ConnectionHandlerParams) (*ConnectionHandler, *ConnectionChannels) {
	if params.IncomingFrameQueueLength == 0 {
		params.IncomingFrameQueueLength = 64
	}
	if params.OutgoingFrameQueueLength == 0 {
		params.OutgoingFrameQueueLength = 16
	}

	incoming := make(chan Frame, params.IncomingFrameQueueLength)
	outgoing := make(chan Frame, params.OutgoingFrameQueueLength)
	transportClosed := make(chan CloseCommand, 1)
	closeRequests := make(chan CloseCommand, 1)

	handler := &ConnectionHandler{
		Name:                  params.Name,
		GetNowTimestamp:       params.GetNowTimestamp,
		IncomingFrameChannel:  incoming,
		OutgoingFrameChannel:  outgoing,
		TransportCloseChannel: transportClosed,
		CloseRequests:         closeRequests,
	}

	channels := &ConnectionChannels{
		IncomingFrames:  incoming,
		OutgoingFrames:  outgoing,
		TransportClosed: transportClosed,
		CloseRequests:   closeRequests,
	}

	return handler, channels
}
