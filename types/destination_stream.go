package types

// DestinationStream is the identity of the CloudWatch log stream an artifact is forwarded to
type DestinationStream struct {
	LogGroup  string
	LogStream string
}

func NewDestinationStream(logGroup string, ref TriggerReference) DestinationStream {
	return DestinationStream{
		LogGroup:  logGroup,
		LogStream: ref.StreamName(),
	}
}
