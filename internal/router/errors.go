package router

import "errors"

// ErrUnknownMessage is logged for inbound variants the router does not handle
var ErrUnknownMessage = errors.New("unknown inbound message")
