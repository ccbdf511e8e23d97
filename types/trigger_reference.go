package types

import "path"

// TriggerReference identifies the S3 object which triggered an invocation
// Key is always held in its decoded form
type TriggerReference struct {
	Bucket string
	Key    string
}

// StreamName returns the destination log stream name for the object - the base name of the key
func (r TriggerReference) StreamName() string {
	return path.Base(r.Key)
}

func (r TriggerReference) String() string {
	return "s3://" + r.Bucket + "/" + r.Key
}
