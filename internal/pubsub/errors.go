package pubsub

import "errors"

// ErrClosed is returned by Publish/Subscribe once Close has been called.
var ErrClosed = errors.New("pubsub: closed")
