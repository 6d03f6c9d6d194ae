package message

// Every frame in either direction starts with one of these tags.
const (
	ChannelReliable   uint8 = 'r'
	ChannelUnreliable uint8 = 'u'
)

type Channel uint8

const (
	Channel_Reliable Channel = iota
	Channel_Unreliable

	Channel_NONE
)

func ChannelFromTag(tag uint8) Channel {
	switch tag {
	case ChannelReliable:
		return Channel_Reliable
	case ChannelUnreliable:
		return Channel_Unreliable
	}

	return Channel_NONE
}

// ChannelOf classifies an encoded frame by its leading tag byte.
func ChannelOf(frame []byte) Channel {
	if len(frame) == 0 {
		return Channel_NONE
	}
	return ChannelFromTag(frame[0])
}

func (c Channel) String() string {
	switch c {
	case Channel_Reliable:
		return "reliable"
	case Channel_Unreliable:
		return "unreliable"
	}
	return "unknown"
}
