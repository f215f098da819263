package httr2

import "sync"

// lastExchange is the process-wide diagnostic record of the most recent
// perform call. Advisory only: not part of the execution contract.
type lastExchange struct {
	mu       sync.Mutex
	request  *Request
	response *Response
	err      error
}

var exchange lastExchange

func recordExchange(req *Request, resp *Response, err error) {
	exchange.mu.Lock()
	defer exchange.mu.Unlock()
	exchange.request = req
	exchange.response = resp
	exchange.err = err
}

// LastRequest returns the most recently performed request, or nil.
func LastRequest() *Request {
	exchange.mu.Lock()
	defer exchange.mu.Unlock()
	return exchange.request
}

// LastResponse returns the response of the most recent perform call, or nil
// if it failed before producing one.
func LastResponse() *Response {
	exchange.mu.Lock()
	defer exchange.mu.Unlock()
	return exchange.response
}

// LastError returns the terminal error of the most recent perform call, or
// nil.
func LastError() error {
	exchange.mu.Lock()
	defer exchange.mu.Unlock()
	return exchange.err
}

// ResetLastExchange clears the diagnostic record. Test hook.
func ResetLastExchange() {
	exchange.mu.Lock()
	defer exchange.mu.Unlock()
	exchange.request = nil
	exchange.response = nil
	exchange.err = nil
}
