package dispatcher

// handlerStatus is the tri-state result every per-state handler returns:
// keep going, the connection wants to be torn down, or something failed
// (any error response to the client has already been sent by the handler).
type handlerStatus int

const (
	handlerOK handlerStatus = iota
	handlerClosed
	handlerError
)
