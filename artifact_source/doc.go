// Package artifact_source resolves the S3 object which triggered an invocation and opens it for reading.
//
// An artifact is a gzip compressed access log object. Forwarding an artifact is composed of:
// - a source ([AwsS3BucketSource]) which fetches the object and exposes its decompressed content as a stream
// - a loader ([artifact_loader.LineLoader]) which splits the stream into decoded lines
// - a mapper ([artifact_mapper.TimestampMapper]) which extracts the timestamp of each line
// - a sink ([artifact_sink.CloudWatchSink]) which publishes the records to a CloudWatch log stream
//
// ##### Artifact forwarding flow
//
// - The trigger is resolved from the first record of the S3 event, decoding the object key.
// - The sink creates the destination stream (named after the key's base name) if it does not already exist.
// - The source fetches the object. Throttling is never retried here - it is returned as a [FetchError] matching
// [ErrThrottled] so the invocation fails and Lambda retries it with backoff.
// - The loader and mapper turn each line into a record, in order, and the sink publishes them.
//
// Any error aborts the remaining lines. Records already published stay published, so a retried
// invocation may publish them again.
package artifact_source
